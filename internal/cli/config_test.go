package cli

import (
	"testing"

	"github.com/dl-alexandre/docsync/internal/config"
	"github.com/dl-alexandre/docsync/internal/utils"
)

func TestSetConfigValue(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		check   func(*config.Config) bool
		wantErr bool
		invalid bool
	}{
		{key: "workers", value: "8", check: func(c *config.Config) bool { return c.Workers == 8 }},
		{key: "SyncInterval", value: "60", check: func(c *config.Config) bool { return c.SyncInterval == 60 }},
		{key: "checksumAlgorithm", value: "BLAKE3", check: func(c *config.Config) bool { return c.ChecksumAlgorithm == "blake3" }},
		{key: "colorOutput", value: "off", check: func(c *config.Config) bool { return !c.ColorOutput }},
		{key: "excludePatterns", value: "*.tmp, ,~$*", check: func(c *config.Config) bool {
			return len(c.ExcludePatterns) == 2 && c.ExcludePatterns[1] == "~$*"
		}},
		{key: "workers", value: "many", wantErr: true},
		{key: "nosuchkey", value: "1", wantErr: true},
		{key: "workers", value: "0", invalid: true},
		{key: "checksumAlgorithm", value: "crc32", invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			cfg := config.DefaultConfig()
			err := setConfigValue(cfg, tt.key, tt.value)
			if tt.wantErr {
				if !utils.IsCode(err, utils.ErrCodeInvalidArgument) {
					t.Fatalf("setConfigValue() error = %v, want INVALID_ARGUMENT", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("setConfigValue() error = %v", err)
			}
			if tt.invalid {
				if cfg.Validate() == nil {
					t.Fatalf("Validate() accepted %s=%s", tt.key, tt.value)
				}
				return
			}
			if !tt.check(cfg) {
				t.Errorf("value not applied: %+v", cfg)
			}
		})
	}
}
