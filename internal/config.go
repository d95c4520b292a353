// Watchdog configuration.

// The configuration is loaded from a YAML file, with the following structure:
//
//  watchdog_config:
//    grace_seconds: 10
//    base_dir: /var/run/watchdog
//    log_config:
//      ...
//    scheduler_config:
//      ...
//
// The "watchdog_config" section maps to the WatchdogConfig structure defined
// in this package.

package wdinternal

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	WATCHDOG_CONFIG_SECTION_NAME = "watchdog_config"

	WATCHDOG_CONFIG_GRACE_SECONDS_DEFAULT = 10
	WATCHDOG_CONFIG_BASE_DIR_DEFAULT      = ""
)

type WatchdogConfig struct {
	// Grace period, in whole seconds, before a peer is declared unresponsive.
	// Must be >= 5.
	GraceSeconds int `yaml:"grace_seconds"`

	// Directory used to hold the named-FIFO semaphores used for the startup
	// handshake (see semaphore.go). Defaults to os.TempDir() when empty.
	BaseDir string `yaml:"base_dir"`

	// Specific components configuration.
	LoggerConfig    *LoggerConfig    `yaml:"log_config"`
	SchedulerConfig *SchedulerConfig `yaml:"scheduler_config"`
}

func DefaultWatchdogConfig() *WatchdogConfig {
	return &WatchdogConfig{
		GraceSeconds:    WATCHDOG_CONFIG_GRACE_SECONDS_DEFAULT,
		BaseDir:         WATCHDOG_CONFIG_BASE_DIR_DEFAULT,
		LoggerConfig:    DefaultLoggerConfig(),
		SchedulerConfig: DefaultSchedulerConfig(),
	}
}

// LoadConfig loads the configuration from the specified YAML file (or buf,
// which is only meant to be pre-populated for testing). Returns an error if
// the configuration could not be loaded or parsed.
func LoadConfig(cfgFile string, buf []byte) (*WatchdogConfig, error) {
	if buf == nil {
		f, err := os.Open(cfgFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		buf, err = io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("file: %q: %v", cfgFile, err)
		}
	}

	docNode := yaml.Node{}
	if err := yaml.Unmarshal(buf, &docNode); err != nil {
		return nil, fmt.Errorf("file: %q: %v", cfgFile, err)
	}

	wdConfig := DefaultWatchdogConfig()
	if docNode.Kind == yaml.DocumentNode && len(docNode.Content) > 0 {
		rootNode := docNode.Content[0]
		if rootNode.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("file: %q: invalid YAML root node %q", cfgFile, rootNode.Tag)
		}
		for i, n := range rootNode.Content {
			if n.Kind == yaml.ScalarNode && n.Value == WATCHDOG_CONFIG_SECTION_NAME {
				if i+1 < len(rootNode.Content) {
					if err := rootNode.Content[i+1].Decode(wdConfig); err != nil {
						return nil, fmt.Errorf("file: %q: %v", cfgFile, err)
					}
				}
				break
			}
		}
	}

	if wdConfig.GraceSeconds < 5 {
		return nil, fmt.Errorf("grace_seconds: %d: must be >= 5", wdConfig.GraceSeconds)
	}

	return wdConfig, nil
}
