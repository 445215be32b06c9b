// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package config

import (
	"io/ioutil"
	"os"
	"testing"
)

const sampleTOML = `
id = "node-7"
debug = true

[radio]
spi_bus = 0
spi_cs = 0
ce_pin = "GPIO22"
intr_pin = "GPIO23"

[uart]
device = "/dev/ttyAMA0"
baud = 115200

[button]
pin = "GPIO17"

[led]
red_pin = "GPIO5"
green_pin = "GPIO6"
blue_pin = "GPIO13"

[output]
sync_pin = "GPIO19"
stop_pin = "GPIO26"

[mqtt]
host = "broker.local"
port = 1883
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	f, err := ioutil.TempFile("", "wmorenode-*.toml")
	if err != nil {
		t.Fatalf("TempFile: %v", err)
	}
	if _, err := f.WriteString(contents); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

func Test_LoadParsesAllSections(t *testing.T) {
	path := writeTempConfig(t, sampleTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ID != "node-7" || !cfg.Debug {
		t.Fatalf("top-level fields wrong: %+v", cfg)
	}
	if cfg.Radio.SpiBus != 0 || cfg.Radio.CEPin != "GPIO22" || cfg.Radio.IntrPin != "GPIO23" {
		t.Fatalf("radio config wrong: %+v", cfg.Radio)
	}
	if cfg.UART.Device != "/dev/ttyAMA0" || cfg.UART.Baud != 115200 {
		t.Fatalf("uart config wrong: %+v", cfg.UART)
	}
	if cfg.Button.Pin != "GPIO17" {
		t.Fatalf("button config wrong: %+v", cfg.Button)
	}
	if cfg.LED.RedPin != "GPIO5" || cfg.LED.GreenPin != "GPIO6" || cfg.LED.BluePin != "GPIO13" {
		t.Fatalf("led config wrong: %+v", cfg.LED)
	}
	if cfg.Output.SyncPin != "GPIO19" || cfg.Output.StopPin != "GPIO26" {
		t.Fatalf("output config wrong: %+v", cfg.Output)
	}
	if !cfg.MqttEnabled() || cfg.Mqtt.Host != "broker.local" {
		t.Fatalf("mqtt config wrong: %+v", cfg.Mqtt)
	}
	if cfg.MetricsEnabled() {
		t.Fatalf("metrics should be disabled when listen is unset")
	}
	if cfg.Backend != BackendPeriph {
		t.Fatalf("backend = %q, want default %q", cfg.Backend, BackendPeriph)
	}
}

func Test_LoadRejectsMissingID(t *testing.T) {
	path := writeTempConfig(t, `debug = false`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing id")
	}
}

func Test_LoadRejectsMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/wmorenode.toml"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func Test_LoadAcceptsEmbdBackend(t *testing.T) {
	path := writeTempConfig(t, "id = \"node-8\"\nbackend = \"embd\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != BackendEmbd {
		t.Fatalf("backend = %q, want %q", cfg.Backend, BackendEmbd)
	}
}

func Test_LoadRejectsUnknownBackend(t *testing.T) {
	path := writeTempConfig(t, "id = \"node-9\"\nbackend = \"bluetooth\"\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
