// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Command wmorenode runs the time-synchronization daemon on a single
// logger board: it brings up the radio, button, UART, and LED/SYNC/STOP
// lines described by a config file, then drives the node's idle/coord/
// logger state machine until interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"periph.io/x/periph/host"

	"github.com/NeuroRehack/WMORE/config"
	"github.com/NeuroRehack/WMORE/events"
	"github.com/NeuroRehack/WMORE/frame"
	"github.com/NeuroRehack/WMORE/hostio"
	"github.com/NeuroRehack/WMORE/input"
	"github.com/NeuroRehack/WMORE/metrics"
	"github.com/NeuroRehack/WMORE/node"
	"github.com/NeuroRehack/WMORE/output"
	"github.com/NeuroRehack/WMORE/pipe"
	"github.com/NeuroRehack/WMORE/radio"
	"github.com/NeuroRehack/WMORE/spimux"
	"github.com/NeuroRehack/WMORE/status"
)

var log = logrus.New()

func main() {
	rootCmd := &cobra.Command{
		Use:   "wmorenode",
		Short: "Time-synchronization daemon for a WMORE data logger node",
	}

	var configPath string
	var debug bool

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the node state machine until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				log.SetLevel(logrus.DebugLevel)
			}
			return run(configPath)
		},
	}
	runCmd.Flags().StringVarP(&configPath, "config", "c", "/etc/wmorenode.toml", "path to node TOML config")
	runCmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(runCmd)

	var rc radiocheckOpts
	radiocheckCmd := &cobra.Command{
		Use:   "radiocheck",
		Short: "Bring-up tool that exercises the ESB radio directly, bypassing the node state machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRadiocheck(rc)
		},
	}
	radiocheckCmd.Flags().IntVar(&rc.spiBus, "spi-bus", 0, "SPI bus number")
	radiocheckCmd.Flags().IntVar(&rc.spiCS, "spi-cs", 0, "SPI chip select number")
	radiocheckCmd.Flags().StringVar(&rc.cePin, "ce-pin", "GPIO22", "radio CE pin name")
	radiocheckCmd.Flags().StringVar(&rc.irqPin, "irq-pin", "GPIO23", "radio IRQ pin name")
	radiocheckCmd.Flags().BoolVar(&rc.tx, "tx", false, "transmit test frames instead of listening")
	radiocheckCmd.Flags().BoolVar(&rc.bench, "bench", false, "drive two radios muxed onto the same SPI bus: one transmits, one listens")
	radiocheckCmd.Flags().StringVar(&rc.muxSelPin, "mux-sel-pin", "GPIO27", "demux select GPIO shared by both bench radios (--bench only)")
	radiocheckCmd.Flags().StringVar(&rc.ceBenchPin, "ce-pin-2", "GPIO24", "second radio's CE pin (--bench only)")
	radiocheckCmd.Flags().StringVar(&rc.irqBenchPin, "irq-pin-2", "GPIO25", "second radio's IRQ pin (--bench only)")
	rootCmd.AddCommand(radiocheckCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Backend == config.BackendPeriph {
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("periph host.Init: %w", err)
		}
	}

	spiPort, err := openSPI(cfg)
	if err != nil {
		return err
	}
	cePin, err := openGPIO(cfg, cfg.Radio.CEPin)
	if err != nil {
		return err
	}
	irqPin, err := openGPIO(cfg, cfg.Radio.IntrPin)
	if err != nil {
		return err
	}
	btnPin, err := openGPIO(cfg, cfg.Button.Pin)
	if err != nil {
		return err
	}
	syncPin, err := openGPIO(cfg, cfg.Output.SyncPin)
	if err != nil {
		return err
	}
	stopPin, err := openGPIO(cfg, cfg.Output.StopPin)
	if err != nil {
		return err
	}
	redPin, err := openGPIO(cfg, cfg.LED.RedPin)
	if err != nil {
		return err
	}
	greenPin, err := openGPIO(cfg, cfg.LED.GreenPin)
	if err != nil {
		return err
	}
	bluePin, err := openGPIO(cfg, cfg.LED.BluePin)
	if err != nil {
		return err
	}

	ev := &events.Mask{}

	btn, err := input.NewButton(btnPin, ev)
	if err != nil {
		return fmt.Errorf("button: %w", err)
	}
	defer btn.Close()

	var uart *input.UARTAssembler
	if cfg.UART.Device != "" {
		uart, err = input.OpenUARTAssembler(cfg.UART.Device, uint32(cfg.UART.Baud), logf)
		if err != nil {
			return fmt.Errorf("uart: %w", err)
		}
		defer uart.Close()
	}

	out := output.New(output.Pins{
		Sync:     syncPin,
		Stop:     stopPin,
		LEDRed:   redPin,
		LEDGreen: greenPin,
		LEDBlue:  bluePin,
	})

	var statusPub node.StatusPublisher
	if cfg.MqttEnabled() {
		pub, err := status.New(status.Config{
			Host:     cfg.Mqtt.Host,
			Port:     cfg.Mqtt.Port,
			User:     cfg.Mqtt.User,
			Password: cfg.Mqtt.Password,
		}, cfg.ID)
		if err != nil {
			log.Warnf("status publisher disabled: %v", err)
		} else {
			statusPub = pub
			defer pub.Close()
		}
	}

	var metricsRec node.MetricsRecorder
	if cfg.MetricsEnabled() {
		rec := metrics.New(cfg.ID)
		metricsRec = rec
		go func() {
			if err := rec.ListenAndServe(cfg.Metrics.Listen); err != nil && err != http.ErrServerClosed {
				log.Errorf("metrics listener stopped: %v", err)
			}
		}()
	}

	ownPipe := pipe.FromDeviceID([]byte(cfg.ID))

	n := node.New(node.Deps{
		ID:      cfg.ID,
		Button:  btn,
		UART:    uart,
		Output:  out,
		Events:  ev,
		OwnPipe: ownPipe,
		Status:  statusPub,
		Metrics: metricsRec,
		Logger:  logf,
	})

	r, err := radio.New(spiPort, cePin, irqPin, n.RadioCallback(), logf)
	if err != nil {
		return fmt.Errorf("radio: %w", err)
	}
	n.SetRadio(r)
	defer n.Close()

	log.Infof("wmorenode %s starting on pipe %d", cfg.ID, ownPipe)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	dumpCh := make(chan os.Signal, 1)
	signal.Notify(dumpCh, syscall.SIGUSR1)
	go func() {
		for range dumpCh {
			for _, line := range n.TraceDump() {
				log.Info(line)
			}
		}
	}()

	n.Run(ctx)
	return nil
}

// openSPI opens the node's radio SPI bus through the backend named by
// cfg.Backend. The embd backend owns its bus parameters (4MHz, mode 0) and
// ignores cfg.Radio.SpiBus/SpiCS.
func openSPI(cfg config.NodeConfig) (hostio.SPI, error) {
	switch cfg.Backend {
	case config.BackendEmbd:
		return hostio.NewEmbdSPI(), nil
	default:
		spiName := fmt.Sprintf("SPI%d.%d", cfg.Radio.SpiBus, cfg.Radio.SpiCS)
		return hostio.NewPeriphSPI(spiName)
	}
}

// openGPIO opens a single GPIO line by name through the backend named by
// cfg.Backend.
func openGPIO(cfg config.NodeConfig, name string) (hostio.GPIO, error) {
	switch cfg.Backend {
	case config.BackendEmbd:
		g := hostio.NewEmbdGPIO(name)
		if g == nil {
			return nil, fmt.Errorf("hostio: embd: failed to open GPIO %q", name)
		}
		return g, nil
	default:
		return hostio.NewPeriphGPIO(name)
	}
}

// radiocheckOpts collects the radiocheck subcommand's flags. It is a
// descendant of cmd/rfm-check and cmd/sx1231-test's bring-up tools: it opens
// the ESB radio directly and either listens for broadcasts or sends a
// handful of START_TICK frames, without any of the node package's role
// state machine.
type radiocheckOpts struct {
	spiBus, spiCS           int
	cePin, irqPin           string
	tx                      bool
	bench                   bool
	muxSelPin               string
	ceBenchPin, irqBenchPin string
}

func onRadiocheckEvent(label string) radio.Callback {
	return func(kind radio.EventKind, f frame.Frame, pipeNum byte) {
		switch kind {
		case radio.RXReceived:
			log.Infof("%s: rx pipe=%d cmd=%s data=%v", label, pipeNum, f.Cmd, f.Data)
		case radio.TXSuccess:
			log.Infof("%s: tx ok", label)
		case radio.TXFailed:
			log.Infof("%s: tx failed", label)
		}
	}
}

func runRadiocheck(opts radiocheckOpts) error {
	if _, err := host.Init(); err != nil {
		return err
	}
	if opts.bench {
		return runRadiocheckBench(opts)
	}

	spiPort, err := hostio.NewPeriphSPI(fmt.Sprintf("SPI%d.%d", opts.spiBus, opts.spiCS))
	if err != nil {
		return err
	}
	cePin, err := hostio.NewPeriphGPIO(opts.cePin)
	if err != nil {
		return err
	}
	irqPin, err := hostio.NewPeriphGPIO(opts.irqPin)
	if err != nil {
		return err
	}

	log.Info("initializing radio...")
	t0 := time.Now()
	r, err := radio.New(spiPort, cePin, irqPin, onRadiocheckEvent("radio"), logf)
	if err != nil {
		return err
	}
	defer r.Close()
	log.Infof("ready (%.1fms)", time.Since(t0).Seconds()*1000)

	if opts.tx {
		return radiocheckTransmit(r)
	}
	log.Info("listening for broadcasts, ctrl-C to stop...")
	select {}
}

// runRadiocheckBench mirrors the single-radio probe above but drives two
// radios sharing one SPI bus through spimux: one transmits START_TICK
// broadcasts while the other listens, exercising the coordinator/logger
// pairing the demux circuit was built for without a second host.
func runRadiocheckBench(opts radiocheckOpts) error {
	spiPort, err := hostio.NewPeriphSPI(fmt.Sprintf("SPI%d.%d", opts.spiBus, opts.spiCS))
	if err != nil {
		return err
	}
	selPin, err := hostio.NewPeriphGPIO(opts.muxSelPin)
	if err != nil {
		return err
	}
	txCE, err := hostio.NewPeriphGPIO(opts.cePin)
	if err != nil {
		return err
	}
	txIRQ, err := hostio.NewPeriphGPIO(opts.irqPin)
	if err != nil {
		return err
	}
	rxCE, err := hostio.NewPeriphGPIO(opts.ceBenchPin)
	if err != nil {
		return err
	}
	rxIRQ, err := hostio.NewPeriphGPIO(opts.irqBenchPin)
	if err != nil {
		return err
	}

	txConn, rxConn := spimux.New(spiPort, selPin)

	txRadio, err := radio.New(txConn, txCE, txIRQ, onRadiocheckEvent("bench-coord"), logf)
	if err != nil {
		return fmt.Errorf("bench coordinator radio: %w", err)
	}
	defer txRadio.Close()
	rxRadio, err := radio.New(rxConn, rxCE, rxIRQ, onRadiocheckEvent("bench-logger"), logf)
	if err != nil {
		return fmt.Errorf("bench logger radio: %w", err)
	}
	defer rxRadio.Close()

	log.Info("bench rig ready, bench-coord transmitting to bench-logger")
	return radiocheckTransmit(txRadio)
}

func radiocheckTransmit(r *radio.Radio) error {
	if err := r.SwitchMode(radio.ModePTX); err != nil {
		return err
	}
	for i := 0; i < 5; i++ {
		log.Infof("broadcasting START_TICK %d...", i)
		if err := r.SendBroadcast(frame.Frame{Cmd: frame.StartTick, Data: frame.EncodeRTC(uint32(time.Now().Unix()), 0)}); err != nil {
			log.Warnf("send failed: %v", err)
		}
		time.Sleep(time.Second)
	}
	return nil
}

func logf(format string, v ...interface{}) {
	log.Debugf(format, v...)
}
