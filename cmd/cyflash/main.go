// Command cyflash flashes .cyacd firmware images onto Cypress/Infineon PSoC
// devices running the standard bootloader, over a serial port or a CAN bus.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/StrainMeasurementDevices/cyflash/bootloader"
	"github.com/StrainMeasurementDevices/cyflash/cyacd"
	"github.com/StrainMeasurementDevices/cyflash/transport"
)

var (
	app = kingpin.New("cyflash", "Bootloader tool for Cypress PSoC devices.")

	serialPort = app.Flag("serial", "Use a serial interface.").PlaceHolder("PORT").String()
	canbus     = app.Flag("canbus", "Use a CANbus interface (SocketCAN).").PlaceHolder("IFACE").String()

	serialBaudrate = app.Flag("serial_baudrate", "Baud rate to use when flashing using serial.").Default("115200").Int()
	parity         = app.Flag("parity", "Desired parity (e.g. None, Even, Odd, Mark, or Space).").Default("None").String()
	stopbits       = app.Flag("stopbits", "Desired stop bits (e.g. 1, 1.5, or 2).").Default("1").String()
	dtr            = app.Flag("dtr", "Set DTR state true (default false).").Bool()
	rts            = app.Flag("rts", "Set RTS state true (default false).").Bool()

	canbusID   = app.Flag("canbus_id", "CANbus frame ID to be used.").Default("0").String()
	canbusEcho = app.Flag("canbus_echo", "Use echoed back received CAN frames to keep the host in sync.").Bool()
	canbusWait = app.Flag("canbus_wait", "Wait this many ms after sending a frame when not using echo frames.").Default("5").Int()

	timeout = app.Flag("timeout", "Time in seconds to wait for a bootloader response.").Default("5.0").Float64()

	downgrade   = app.Flag("downgrade", "Don't prompt before flashing old firmware over newer.").Bool()
	nodowngrade = app.Flag("nodowngrade", "Fail instead of prompting when device firmware is newer.").Bool()
	newapp      = app.Flag("newapp", "Don't prompt before flashing an image with a different application ID.").Bool()
	nonewapp    = app.Flag("nonewapp", "Fail instead of flashing an image with a different application ID.").Bool()

	key       = app.Flag("key", "Optional security key (six bytes, on the form 0xAABBCCDDEEFF).").String()
	chunkSize = app.Flag("chunk-size", "Chunk size to use for transfers.").Short('c').Default(strconv.Itoa(bootloader.DefaultChunkSize)).Int()
	dualApp   = app.Flag("dual-app", "The bootloader is dual-application - will mark the newly flashed app as active.").Bool()
	psoc5     = app.Flag("psoc5", "Parse metadata in the PSoC5 layout.").Bool()
	verbose   = app.Flag("verbose", "Enable verbose debug output.").Short('v').Bool()

	image = app.Arg("image", "Image to read flash data from.").Required().ExistingFile()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Unhandled error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if (*serialPort == "") == (*canbus == "") {
		return errors.New("exactly one of --serial and --canbus must be given")
	}
	if *downgrade && *nodowngrade {
		return errors.New("--downgrade and --nodowngrade are mutually exclusive")
	}
	if *newapp && *nonewapp {
		return errors.New("--newapp and --nonewapp are mutually exclusive")
	}

	keyBytes, err := parseKey(*key)
	if err != nil {
		return err
	}

	start := time.Now()

	fw, err := cyacd.ReadFile(*image)
	if err != nil {
		return err
	}

	t, closeTransport, err := openTransport()
	if err != nil {
		return err
	}
	defer closeTransport()

	opts := []bootloader.Option{
		bootloader.WithKey(keyBytes),
		bootloader.WithChunkSize(*chunkSize),
		bootloader.WithProgress(&barProgress{}),
	}
	if *psoc5 {
		opts = append(opts, bootloader.WithPSoC5Metadata())
	}

	host, err := bootloader.NewHost(t, fw, opts...)
	if err != nil {
		return err
	}

	if err := bootload(host); err != nil {
		return err
	}

	fmt.Printf("Total running time %.2fs\n", time.Since(start).Seconds())
	return nil
}

// bootload walks the host through the full sequence, applying the
// downgrade/newapp policy to any metadata mismatches.
func bootload(host *bootloader.Host) error {
	if err := host.EnterBootloader(); err != nil {
		return err
	}

	appToFlash := byte(0)
	if *dualApp {
		var err error
		appToFlash, err = host.GetApplicationInactive()
		if err != nil {
			return err
		}
	}

	if err := host.VerifyRowRanges(); err != nil {
		return err
	}

	mismatches, err := host.CheckMetadata(false, false)
	if err != nil {
		return err
	}
	downgradeOK := seekPermission(triState(*downgrade, *nodowngrade),
		"Device version %d is greater than local version %d. Flash anyway? (Y/N)")
	newappOK := seekPermission(triState(*newapp, *nonewapp),
		"Device app ID %d is different from local app ID %d. Flash anyway? (Y/N)")
	for _, m := range mismatches {
		switch mm := m.(type) {
		case bootloader.AppVersionMismatch:
			if !downgradeOK(mm.Device, mm.Local) {
				return errors.New(mm.String())
			}
		case bootloader.AppIDMismatch:
			if !newappOK(mm.Device, mm.Local) {
				return errors.New(mm.String())
			}
		default:
			return errors.New(m.String())
		}
	}

	if err := host.WriteRows(); err != nil {
		return err
	}
	if err := host.VerifyChecksum(); err != nil {
		return err
	}

	if *dualApp {
		if err := host.SetApplicationActive(appToFlash); err != nil {
			return err
		}
	}

	return host.ExitBootloader()
}

func openTransport() (transport.Transport, func(), error) {
	if *serialPort != "" {
		mode := &serial.Mode{
			BaudRate: *serialBaudrate,
			DataBits: 8,
			Parity:   parseParity(*parity),
			StopBits: parseStopBits(*stopbits),
		}
		port, err := serial.Open(*serialPort, mode)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", *serialPort, err)
		}
		if err := port.SetReadTimeout(time.Duration(*timeout * float64(time.Second))); err != nil {
			port.Close()
			return nil, nil, err
		}
		if err := port.SetDTR(*dtr); err != nil {
			port.Close()
			return nil, nil, err
		}
		if err := port.SetRTS(*rts); err != nil {
			port.Close()
			return nil, nil, err
		}
		// Clear any garbage off the serial port.
		port.ResetInputBuffer()
		port.ResetOutputBuffer()
		return transport.NewSerial(port), func() { port.Close() }, nil
	}

	frameID, err := strconv.ParseUint(*canbusID, 0, 32)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid --canbus_id %q: %w", *canbusID, err)
	}
	bus, err := transport.OpenSocketCAN(*canbus)
	if err != nil {
		return nil, nil, err
	}
	t := transport.NewCAN(bus, transport.CANConfig{
		FrameID:   uint32(frameID),
		Timeout:   time.Duration(*timeout * float64(time.Second)),
		Echo:      *canbusEcho,
		SendDelay: time.Duration(*canbusWait) * time.Millisecond,
	})
	return t, func() { bus.Close() }, nil
}

// parseKey decodes a 0xAABBCCDDEEFF style key into its six bytes. An empty
// string means no key.
func parseKey(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if len(s) != 14 || !strings.HasPrefix(strings.ToLower(s), "0x") {
		return nil, fmt.Errorf("key %q is of unexpected length, want the form 0xAABBCCDDEEFF", s)
	}
	val, err := strconv.ParseUint(s[2:], 16, 48)
	if err != nil {
		return nil, fmt.Errorf("key %q is of unexpected format: %w", s, err)
	}
	keyBytes := make([]byte, 6)
	for i := 0; i < 6; i++ {
		keyBytes[i] = byte(val >> (40 - 8*i))
	}
	return keyBytes, nil
}

func parseParity(value string) serial.Parity {
	switch strings.ToLower(value) {
	case "none", "n":
		return serial.NoParity
	case "even", "e":
		return serial.EvenParity
	case "odd", "o":
		return serial.OddParity
	case "mark", "m":
		return serial.MarkParity
	case "space", "s":
		return serial.SpaceParity
	default:
		fmt.Printf("illegal argument %q for parity, using none instead\n", value)
		return serial.NoParity
	}
}

func parseStopBits(value string) serial.StopBits {
	switch value {
	case "1":
		return serial.OneStopBit
	case "1.5":
		return serial.OnePointFiveStopBits
	case "2":
		return serial.TwoStopBits
	default:
		fmt.Printf("illegal argument %q for stopbits, using 1 instead\n", value)
		return serial.OneStopBit
	}
}

// triState folds a yes-flag/no-flag pair into a forced decision, or nil when
// neither was given and the user should be prompted.
func triState(yes, no bool) *bool {
	switch {
	case yes:
		v := true
		return &v
	case no:
		v := false
		return &v
	default:
		return nil
	}
}

func seekPermission(forced *bool, format string) func(device, local uint16) bool {
	if forced != nil {
		v := *forced
		return func(uint16, uint16) bool { return v }
	}
	reader := bufio.NewReader(os.Stdin)
	return func(device, local uint16) bool {
		for {
			fmt.Printf(format+" ", device, local)
			line, err := reader.ReadString('\n')
			if err != nil {
				return false
			}
			switch {
			case strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "y"):
				return true
			case strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "n"):
				return false
			}
		}
	}
}

// barProgress renders row programming progress as one bar spanning the whole
// image. The bar survives array boundaries: total and current count rows
// across every array, so a multi-array image shows a single monotonic bar.
type barProgress struct {
	bar *progressbar.ProgressBar
	out io.Writer
}

func (p *barProgress) RowProgress(message string, current, total int) {
	if p.bar == nil {
		opts := []progressbar.Option{
			progressbar.OptionSetDescription(message),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
		}
		if p.out != nil {
			opts = append(opts, progressbar.OptionSetWriter(p.out))
		}
		p.bar = progressbar.NewOptions(total, opts...)
	}
	_ = p.bar.Set(current)
	if current == total {
		_ = p.bar.Finish()
	}
}

func (p *barProgress) ArrayCompleted() {
	out := p.out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintln(out)
}
