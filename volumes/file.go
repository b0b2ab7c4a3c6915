package volumes

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/honeycombio/rebalancer/allocator"
	"github.com/honeycombio/rebalancer/config"
	"github.com/honeycombio/rebalancer/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileSource reads volumes from a YAML, TOML or JSON document that maps each
// project to a list of {name, count} entries. The file is re-read whenever its
// contents change, so whatever produces the counts can simply rewrite it.
type FileSource struct {
	Config config.Config `inject:""`
	Logger logger.Logger `inject:""`

	path    string
	max     int
	hash    string
	volumes map[string][]allocator.TransactionVolume
	mut     sync.RWMutex
}

var _ Source = (*FileSource)(nil)

func (f *FileSource) Start() error {
	f.applyConfig()
	if err := f.refresh(); err != nil {
		return err
	}
	f.Config.RegisterReloadCallback(func(string) {
		f.applyConfig()
		if err := f.refresh(); err != nil {
			f.Logger.Error().WithField("error", err.Error()).Logf("failed to reload volumes file")
		}
	})
	return nil
}

func (f *FileSource) applyConfig() {
	cfg := f.Config.GetVolumesConfig()
	f.mut.Lock()
	defer f.mut.Unlock()
	if cfg.Path != f.path {
		f.hash = ""
	}
	f.path = cfg.Path
	f.max = cfg.MaxTransactions
}

// refresh re-reads the file and replaces the loaded volumes if its hash has
// changed. On any error the previous volumes are kept.
func (f *FileSource) refresh() error {
	f.mut.RLock()
	path := f.path
	f.mut.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading volumes from %s", path)
	}
	sum := md5.Sum(data)
	hash := hex.EncodeToString(sum[:])

	f.mut.RLock()
	unchanged := hash == f.hash
	f.mut.RUnlock()
	if unchanged {
		return nil
	}

	volumes := make(map[string][]allocator.TransactionVolume)
	switch format := config.FormatFromFilename(path); format {
	case config.FormatJSON:
		err = json.Unmarshal(data, &volumes)
	default:
		err = config.Load(bytes.NewReader(data), format, &volumes)
	}
	if err != nil {
		return errors.Wrapf(err, "parsing volumes from %s", path)
	}

	f.mut.Lock()
	f.volumes = volumes
	f.hash = hash
	f.mut.Unlock()
	f.Logger.Debug().WithString("path", path).WithField("projects", len(volumes)).Logf("loaded volumes file")
	return nil
}

func (f *FileSource) GetVolumes(ctx context.Context, project string) ([]allocator.TransactionVolume, error) {
	if err := f.refresh(); err != nil {
		return nil, err
	}
	f.mut.RLock()
	defer f.mut.RUnlock()
	return topN(f.volumes[project], f.max), nil
}

func (f *FileSource) Projects(ctx context.Context) ([]string, error) {
	if err := f.refresh(); err != nil {
		return nil, err
	}
	f.mut.RLock()
	defer f.mut.RUnlock()
	projects := make([]string, 0, len(f.volumes))
	for name := range f.volumes {
		projects = append(projects, name)
	}
	sort.Strings(projects)
	return projects, nil
}
