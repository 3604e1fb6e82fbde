package xlog

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

var consoleSink = os.Stdout

const (
	colorReset  = "\x1b[0m"
	colorBold   = "\x1b[1m"
	colorTime   = "\x1b[38;5;108m"
	colorWarn   = "\x1b[38;5;214m"
	colorError  = "\x1b[38;5;167m"
	colorKey    = "\x1b[38;5;109m"
)

// consoleEncoder is a calm, compact console encoder in the spirit of the
// teacher's minimal logging format, trimmed to this module's field set
// (lease_id, service, zone, revision) instead of a themeable palette.
//
// Format: "13:04:35  lease acquired  lease_id=42 ttl=60"
type consoleEncoder struct {
	zapcore.Encoder
}

func newConsoleEncoder() *consoleEncoder {
	return &consoleEncoder{
		Encoder: zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
	}
}

func (enc *consoleEncoder) Clone() zapcore.Encoder {
	return &consoleEncoder{Encoder: enc.Encoder.Clone()}
}

func (enc *consoleEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	out := buffer.NewPool().Get()

	out.AppendString(colorTime)
	out.AppendString(ent.Time.Format("15:04:05"))
	out.AppendString(colorReset)

	if ent.Level != zapcore.InfoLevel {
		out.AppendString("  ")
		out.AppendString(levelTag(ent.Level))
	}

	out.AppendString("  ")
	out.AppendString(ent.Message)

	if len(fields) > 0 {
		out.AppendString("  ")
		out.AppendString(formatFields(fields))
	}

	out.AppendString("\n")
	return out, nil
}

func levelTag(level zapcore.Level) string {
	switch level {
	case zapcore.WarnLevel:
		return colorBold + colorWarn + "WARN" + colorReset
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return colorBold + colorError + level.CapitalString() + colorReset
	default:
		return ""
	}
}

func fieldValue(f zapcore.Field) string {
	switch f.Type {
	case zapcore.StringType:
		return f.String
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return fmt.Sprintf("%d", f.Integer)
	case zapcore.BoolType:
		return fmt.Sprintf("%v", f.Integer == 1)
	default:
		if f.Interface != nil {
			return fmt.Sprintf("%v", f.Interface)
		}
		return ""
	}
}

// formatFields renders structured fields as "key=value key=value", with
// key names in a consistent accent color so they stand out from the
// message without a full theme system.
func formatFields(fields []zapcore.Field) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		val := fieldValue(f)
		if val == "" {
			continue
		}
		parts = append(parts, colorKey+f.Key+colorReset+"="+val)
	}
	return strings.Join(parts, " ")
}
