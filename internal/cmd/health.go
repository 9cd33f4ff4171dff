package cmd

import (
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eventwindow/eventwindow/internal/core/window"
	errwrap "github.com/eventwindow/eventwindow/internal/errors"
	"github.com/eventwindow/eventwindow/internal/observability"
)

type selfCheck struct {
	name     string
	exitCode foundry.ExitCode
	run      func(cmd *cobra.Command) error
}

var selfChecks = []selfCheck{
	{"version information", foundry.ExitConfigInvalid, func(*cobra.Command) error {
		if versionInfo.Version == "" {
			return errors.New("version information missing")
		}
		return nil
	}},
	{"configuration", foundry.ExitConfigInvalid, func(cmd *cobra.Command) error {
		_, err := loadConfig(cmd, nil)
		return err
	}},
	{"window counter", foundry.ExitFailure, func(*cobra.Command) error {
		return checkCounter()
	}},
}

// checkCounter drives a throwaway counter through one full window.
func checkCounter() error {
	c := window.New()
	steps := []struct {
		what string
		got  window.Result
	}{
		{"limit", c.WindowLimitSet(10)},
		{"start", c.WindowStart(0)},
		{"add", c.EventAdd(1)},
		{"add", c.EventAdd(5)},
	}
	for _, s := range steps {
		if s.got != window.Okay {
			return fmt.Errorf("%s returned %s", s.what, s.got)
		}
	}
	if n := c.EventCountGet(11); n != 1 {
		return fmt.Errorf("count at tick 11 is %d, want 1", n)
	}
	if res := c.WindowStop(12); res != window.Okay {
		return fmt.Errorf("stop returned %s", res)
	}
	return nil
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Run a self-health check to verify the application can start successfully.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		if log == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("logger not initialized"))
			return
		}

		log.Info("Running health check...")
		for _, check := range selfChecks {
			if err := check.run(cmd); err != nil {
				log.Error("❌ FAIL: "+check.name, zap.Error(err))
				ExitWithCode(log, check.exitCode, "Health check failed: "+check.name, err)
				return
			}
			log.Info("✅ " + check.name)
		}

		log.Info("")
		log.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
