package chanclose

import (
	"io"

	"github.com/btcsuite/btclog/v2"
	"github.com/lightninglabs/chanclose/closes"
	"github.com/lightninglabs/chanclose/lndwrap"
	"github.com/lightninglabs/chanclose/nodes"
	"github.com/lightninglabs/chanclose/resolutions"
	"github.com/lightningnetwork/lnd/build"
)

// Subsystem defines the logging code for this subsystem.
const Subsystem = "CHCL"

var (
	// log is a logger that is initialized with no output filters. This
	// means the package will not perform any logging by default until the
	// caller requests it.
	log = btclog.Disabled

	// subLoggers maps each of our subsystems to the function that sets
	// its logger.
	subLoggers = map[string]func(btclog.Logger){
		Subsystem:             UseLogger,
		closes.Subsystem:      closes.UseLogger,
		resolutions.Subsystem: resolutions.UseLogger,
		lndwrap.Subsystem:     lndwrap.UseLogger,
		nodes.Subsystem:       nodes.UseLogger,
	}
)

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// SetupLoggers initializes all package-global loggers to write to the writer
// provided, at the levels set by a debug level string. The shutdown function
// is called if a critical error is logged, and may be nil.
func SetupLoggers(w io.Writer, debugLevel string, shutdown func()) error {
	root := build.NewSubLoggerManager(btclog.NewDefaultHandler(w))

	for subsystem, useLogger := range subLoggers {
		addSubLogger(root, subsystem, shutdown, useLogger)
	}

	return build.ParseAndSetDebugLevels(debugLevel, root)
}

// validateDebugLevel checks that a debug level string only names levels and
// subsystems that we know of.
func validateDebugLevel(debugLevel string) error {
	root := build.NewSubLoggerManager()
	for subsystem := range subLoggers {
		setSubLogger(root, subsystem, btclog.Disabled, nil)
	}

	return build.ParseAndSetDebugLevels(debugLevel, root)
}

// genSubLogger creates a logger for a subsystem. We provide a shutdown
// function to be able to exit in the case of a critical error.
func genSubLogger(root *build.SubLoggerManager,
	shutdown func()) func(string) btclog.Logger {

	requestShutdown := func() {
		if shutdown != nil {
			shutdown()
		}
	}

	return func(tag string) btclog.Logger {
		return root.GenSubLogger(tag, requestShutdown)
	}
}

// addSubLogger is a helper method to conveniently create and register the
// logger of a sub system.
func addSubLogger(root *build.SubLoggerManager, subsystem string,
	shutdown func(), useLogger func(btclog.Logger)) {

	logger := build.NewSubLogger(subsystem, genSubLogger(root, shutdown))
	setSubLogger(root, subsystem, logger, useLogger)
}

// setSubLogger is a helper method to conveniently register the logger of a sub
// system.
func setSubLogger(root *build.SubLoggerManager, subsystem string,
	logger btclog.Logger, useLogger func(btclog.Logger)) {

	root.RegisterSubLogger(subsystem, logger)
	if useLogger != nil {
		useLogger(logger)
	}
}
