package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ericogr/hx711-to-mqtt/pkg/output"
	"github.com/ericogr/hx711-to-mqtt/pkg/sensor"
)

type ConsoleOutput struct {
	w io.Writer
}

func NewConsole() output.Output { return &ConsoleOutput{w: os.Stdout} }

func (c *ConsoleOutput) Publish(readings []sensor.Reading) error {
	for _, r := range readings {
		if _, err := fmt.Fprintf(c.w, "%s raw=%d value=%.3f %s\n", r.Timestamp.Format(time.RFC3339), r.Raw, r.Value, r.Unit); err != nil {
			return err
		}
	}
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }
