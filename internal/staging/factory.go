package staging

import (
	"fmt"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
	"github.com/bizzlechizzle/aupat-sub000/internal/config"
)

// NewStagingAreaFromConfig creates the StagingArea described by cfg.
func NewStagingAreaFromConfig(cfg config.StagingConfig, fsmgr aupat.FilesystemManager) (aupat.StagingArea, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("staging requires dir to be set")
	}
	return NewStagingArea(cfg.Dir, fsmgr)
}
