package common

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Console prints operator-facing progress lines for the CLI. Structured
// logs go to internal/logger; this is only what a human watches.
type Console struct {
	Out        io.Writer
	ShowEmojis bool
	SilentMode bool
}

// NewConsole creates a console writing to stdout
func NewConsole() *Console {
	return &Console{Out: os.Stdout, ShowEmojis: true}
}

func (c *Console) print(emoji, plain, format string, args ...interface{}) {
	if !c.ShowEmojis {
		emoji = plain
	}
	fmt.Fprintf(c.Out, "%s %s\n", emoji, fmt.Sprintf(format, args...))
}

// Header prints a formatted header
func (c *Console) Header(title string) {
	if c.SilentMode {
		return
	}
	emoji := "🎯"
	if !c.ShowEmojis {
		emoji = "***"
	}
	fmt.Fprintf(c.Out, "\n%s %s\n", emoji, strings.ToUpper(title))
	fmt.Fprintf(c.Out, "%s\n", strings.Repeat("=", len(title)+5))
}

// Info prints an info message
func (c *Console) Info(format string, args ...interface{}) {
	if c.SilentMode {
		return
	}
	c.print("ℹ️ ", "[INFO]", format, args...)
}

// Success prints a success message
func (c *Console) Success(format string, args ...interface{}) {
	if c.SilentMode {
		return
	}
	c.print("✅", "[SUCCESS]", format, args...)
}

// Warn prints a warning message
func (c *Console) Warn(format string, args ...interface{}) {
	c.print("⚠️ ", "[WARN]", format, args...)
}

// Error prints an error message
func (c *Console) Error(format string, args ...interface{}) {
	c.print("❌", "[ERROR]", format, args...)
}

// FormatCurrency formats a value as currency
func FormatCurrency(value float64) string {
	return fmt.Sprintf("$%.2f", value)
}

// FormatPercent formats a percentage value already scaled to 0-100
func FormatPercent(value float64, precision int) string {
	return fmt.Sprintf("%.*f%%", precision, value)
}
