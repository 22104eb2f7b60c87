// Package debug provides namespaced debug logging on top of zap.
//
// Namespaces follow the DEBUG environment variable convention: a comma or
// space separated list of patterns such as "prisma:*" or
// "prisma:client:*,-prisma:engine". A pattern prefixed with "-" disables the
// namespaces it matches.
package debug

import (
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvVar is the environment variable read by InitFromEnv.
const EnvVar = "DEBUG"

var (
	// logger is the sink shared by every namespace
	logger = zap.NewNop()
	// include and exclude hold the compiled namespace patterns
	include []string
	exclude []string
	// mu protects the logger and the patterns
	mu sync.RWMutex
)

// Config holds the output configuration for debug logs.
type Config struct {
	// Namespaces is a DEBUG style pattern list.
	Namespaces string
	// Level is the minimum zap level ("debug", "info", ...). Defaults to debug.
	Level string
	// Format is "console" or "json". Defaults to console.
	Format string
	// OutputFile is "stderr", "stdout" or a file path. Defaults to stderr.
	OutputFile string
}

// Init builds the shared zap logger and enables the configured namespaces.
func Init(cfg Config) error {
	level := zap.NewAtomicLevelAt(zap.DebugLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return fmt.Errorf("invalid debug level %q: %w", cfg.Level, err)
		}
	}

	sink, err := writeSyncer(cfg.OutputFile)
	if err != nil {
		return err
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	SetLogger(zap.New(zapcore.NewCore(encoder, sink, level)))
	Enable(cfg.Namespaces)
	return nil
}

// InitFromEnv initializes debug logging from the DEBUG environment variable.
// Nothing is written unless DEBUG is set.
func InitFromEnv() error {
	namespaces := os.Getenv(EnvVar)
	if namespaces == "" {
		return nil
	}
	return Init(Config{Namespaces: namespaces})
}

func writeSyncer(outputFile string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(outputFile) {
	case "stderr", "":
		return zapcore.AddSync(os.Stderr), nil
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	default:
		file, err := os.OpenFile(outputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open debug log file %s: %w", outputFile, err)
		}
		return zapcore.AddSync(file), nil
	}
}

// SetLogger replaces the shared sink. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// Logger returns the shared sink.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Enable replaces the active namespace patterns.
func Enable(namespaces string) {
	var inc, exc []string
	for _, p := range strings.FieldsFunc(namespaces, func(r rune) bool { return r == ',' || r == ' ' }) {
		if strings.HasPrefix(p, "-") {
			exc = append(exc, p[1:])
			continue
		}
		inc = append(inc, p)
	}

	mu.Lock()
	defer mu.Unlock()
	include, exclude = inc, exc
}

// Enabled reports whether the namespace matches the active patterns.
func Enabled(namespace string) bool {
	mu.RLock()
	defer mu.RUnlock()

	for _, p := range exclude {
		if match(p, namespace) {
			return false
		}
	}
	for _, p := range include {
		if match(p, namespace) {
			return true
		}
	}
	return false
}

func match(pattern, namespace string) bool {
	ok, err := path.Match(pattern, namespace)
	return err == nil && ok
}

// Debugger logs under a single namespace.
type Debugger struct {
	namespace string
}

// New returns a Debugger for namespace.
func New(namespace string) *Debugger {
	return &Debugger{namespace: namespace}
}

// Namespace returns the debugger's namespace.
func (d *Debugger) Namespace() string {
	return d.namespace
}

// Enabled reports whether messages for this namespace are written.
func (d *Debugger) Enabled() bool {
	return Enabled(d.namespace)
}

// Log writes msg at debug level when the namespace is enabled.
func (d *Debugger) Log(msg string, fields ...zap.Field) {
	if !d.Enabled() {
		return
	}
	Logger().Debug(msg, append(fields, zap.String("namespace", d.namespace))...)
}

// Warn writes msg at warn level when the namespace is enabled.
func (d *Debugger) Warn(msg string, fields ...zap.Field) {
	if !d.Enabled() {
		return
	}
	Logger().Warn(msg, append(fields, zap.String("namespace", d.namespace))...)
}
