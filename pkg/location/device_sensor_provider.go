package location

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"
)

const knotsToMetersPerSecond = 0.514444

// PortOpener opens a serial device for reading NMEA sentences.
type PortOpener func(name string, baudRate int) (io.ReadCloser, error)

// DeviceSensorProvider is responsible for retrieving location data from a GPS device connected via serial port.
type DeviceSensorProvider struct {
	port     string // Serial port to which the GPS device is connected
	baudRate int    // Baud rate for the serial communication

	open        PortOpener
	checkAccess func(path string) error
	now         func() time.Time
}

// NewDeviceSensorProvider creates a new instance of DeviceSensorProvider with the specified port and baud rate.
func NewDeviceSensorProvider(port string, baudRate int) *DeviceSensorProvider {
	return &DeviceSensorProvider{
		port:        port,
		baudRate:    baudRate,
		open:        openSerialPort,
		checkAccess: checkReadAccess,
		now:         time.Now,
	}
}

func openSerialPort(name string, baudRate int) (io.ReadCloser, error) {
	return serial.OpenPort(&serial.Config{Name: name, Baud: baudRate})
}

// checkReadAccess opens the device without blocking on carrier detect and closes it again.
func checkReadAccess(path string) error {
	f, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return err
	}
	return f.Close()
}

// RequestPermission checks that the device node is readable by this process.
// There is nothing to prompt for on a serial device, so it matches PermissionStatus.
func (d *DeviceSensorProvider) RequestPermission(ctx context.Context) (Permission, error) {
	return d.PermissionStatus(ctx)
}

// PermissionStatus reports Denied when the OS refuses read access to the device.
func (d *DeviceSensorProvider) PermissionStatus(_ context.Context) (Permission, error) {
	err := d.checkAccess(d.port)
	switch {
	case err == nil:
		return PermissionGranted, nil
	case errors.Is(err, fs.ErrPermission):
		return PermissionDenied, nil
	default:
		return "", fmt.Errorf("failed to access GPS device %s: %w", d.port, err)
	}
}

// GetCurrentFix reads GPS data from the device until a valid GGA sentence arrives or ctx is done.
func (d *DeviceSensorProvider) GetCurrentFix(ctx context.Context) (Sample, error) {
	port, err := d.open(d.port, d.baudRate)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return Sample{}, ErrPermissionDenied
		}
		return Sample{}, fmt.Errorf("%w: failed to open %s: %v", ErrFixUnavailable, d.port, err)
	}
	defer port.Close() // Ensure the port is closed when done

	// Closing the port unblocks a pending read once the deadline passes.
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer stop()

	return d.readFix(ctx, port)
}

// Close is a no-op; the serial port is opened per fix.
func (d *DeviceSensorProvider) Close() error {
	return nil
}

// readFix scans NMEA sentences, remembering the latest valid RMC for speed and
// heading, and returns on the first GGA that carries a fix.
func (d *DeviceSensorProvider) readFix(ctx context.Context, r io.Reader) (Sample, error) {
	var motion *nmea.RMC

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			// Partial lines and unsupported talkers are routine on a live feed
			continue
		}

		switch s := sentence.(type) {
		case nmea.RMC:
			if s.Validity == nmea.ValidRMC {
				rmc := s
				motion = &rmc
			}
		case nmea.GGA:
			if s.FixQuality == nmea.Invalid {
				continue
			}
			return d.sampleFrom(s, motion), nil
		}
	}

	if err := ctx.Err(); err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrFixUnavailable, err)
	}
	if err := scanner.Err(); err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrFixUnavailable, err)
	}
	return Sample{}, fmt.Errorf("%w: no valid GPS data found", ErrFixUnavailable)
}

func (d *DeviceSensorProvider) sampleFrom(gga nmea.GGA, motion *nmea.RMC) Sample {
	coords := Coords{
		Latitude:  gga.Latitude,
		Longitude: gga.Longitude,
		Altitude:  Float(gga.Altitude),
		Accuracy:  Float(gga.HDOP), // Use HDOP as a proxy for accuracy
	}
	if motion != nil {
		coords.Speed = Float(motion.Speed * knotsToMetersPerSecond)
		coords.Heading = Float(motion.Course)
	}

	return Sample{
		Coords:    coords,
		Timestamp: millis(d.now()),
	}
}
