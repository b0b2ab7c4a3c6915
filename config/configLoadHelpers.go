package config

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatUnknown Format = "unknown"
	FormatYAML    Format = "yaml"
	FormatJSON    Format = "json"
	FormatTOML    Format = "toml"
)

// FormatFromFilename returns the format of the file based on the filename extension.
func FormatFromFilename(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatUnknown
	}
}

// formatFromResponse returns the format of the file based on the Content-Type header.
func formatFromResponse(resp *http.Response) Format {
	switch resp.Header.Get("Content-Type") {
	case "application/json", "text/json":
		return FormatJSON
	case "application/x-toml", "application/toml", "text/x-toml", "text/toml":
		return FormatTOML
	case "application/x-yaml", "application/yaml", "text/x-yaml", "text/yaml":
		return FormatYAML
	default:
		return FormatUnknown
	}
}

// getReaderFor returns an io.ReadCloser for the given URL or filename.
func getReaderFor(u string) (io.ReadCloser, Format, error) {
	if u == "" {
		return nil, FormatUnknown, fmt.Errorf("empty url")
	}
	uu, err := url.Parse(u)
	if err != nil {
		return nil, FormatUnknown, err
	}
	switch uu.Scheme {
	case "file", "": // we treat an empty scheme as a filename
		r, err := os.Open(uu.Path)
		if err != nil {
			return nil, FormatUnknown, err
		}
		return r, FormatFromFilename(uu.Path), nil
	case "http", "https":
		resp, err := http.Get(u)
		if err != nil {
			return nil, FormatUnknown, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, FormatUnknown, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, u)
		}
		format := formatFromResponse(resp)
		// if we don't get the format from the Content-Type header, try the path we were given
		// to see if it offers a hint
		if format == FormatUnknown {
			format = FormatFromFilename(uu.Path)
		}
		return resp.Body, format, nil
	default:
		return nil, FormatUnknown, fmt.Errorf("unknown scheme %q", uu.Scheme)
	}
}

// Load decodes r into the given destination according to format. It is
// shared with the file-based volume source.
func Load(r io.Reader, format Format, into any) error {
	switch format {
	case FormatYAML:
		return yaml.NewDecoder(r).Decode(into)
	case FormatTOML:
		return toml.NewDecoder(r).Decode(into)
	case FormatJSON:
		return json.NewDecoder(r).Decode(into)
	default:
		return fmt.Errorf("unable to determine data format")
	}
}

// loadConfigsInto loads all the named configs into dest in the order they are listed.
// It returns the MD5 hash of the collected configs as a string (if there's only one
// config, this is the hash of that config; if there are multiple, it's the hash of
// all of them concatenated together).
func loadConfigsInto(dest any, locations []string) (string, error) {
	h := md5.New()
	for _, location := range locations {
		location := strings.TrimSpace(location)
		r, format, err := getReaderFor(location)
		if err != nil {
			return "", err
		}
		// write the data to the hash as we read it
		rdr := io.TeeReader(r, h)

		// when working on a struct, load only overwrites destination values that are
		// explicitly named. So we can just keep loading successive files into
		// the same object without losing data we've already specified.
		err = Load(rdr, format, dest)
		r.Close()
		if err != nil {
			return "", fmt.Errorf("loadConfigsInto unable to load config %s: %w", location, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// loadConfigsIntoMap loads the configs as generic maps so that their keys can
// be inspected. Top-level sections from later files are merged into earlier ones.
func loadConfigsIntoMap(dest map[string]any, locations []string) error {
	for _, location := range locations {
		location := strings.TrimSpace(location)
		r, format, err := getReaderFor(location)
		if err != nil {
			return err
		}

		temp := make(map[string]any)
		err = Load(r, format, &temp)
		r.Close()
		if err != nil {
			return fmt.Errorf("loadConfigsIntoMap unable to load config %s: %w", location, err)
		}
		for k, v := range temp {
			switch vm := v.(type) {
			case map[string]any:
				existing, ok := dest[k].(map[string]any)
				if !ok {
					dest[k] = vm
					continue
				}
				for kk, vv := range vm {
					existing[kk] = vv
				}
			default:
				dest[k] = v
			}
		}
	}
	return nil
}

// readConfigInto reads the config from the given locations and applies it to the given struct.
func readConfigInto(dest any, locations []string, opts *CmdEnv) (string, error) {
	hash, err := loadConfigsInto(dest, locations)
	if err != nil {
		return hash, err
	}

	// now we've got the config, apply defaults to zero values
	if err := defaults.Set(dest); err != nil {
		return hash, fmt.Errorf("readConfigInto unable to apply defaults: %w", err)
	}

	// don't apply options if we're not given any
	if opts == nil {
		return hash, nil
	}

	if err := opts.ApplyTags(reflect.ValueOf(dest)); err != nil {
		return hash, fmt.Errorf("readConfigInto unable to apply command line options: %w", err)
	}

	return hash, nil
}

// ValidateConfig loads the config named by opts and returns every problem
// found with it. err is non-nil only for problems like a missing file.
func ValidateConfig(opts *CmdEnv) ([]string, error) {
	failures, err := validateSections(opts.ConfigLocations)
	if err != nil {
		return nil, err
	}

	var c configContents
	if _, err := readConfigInto(&c, opts.ConfigLocations, opts); err != nil {
		return nil, err
	}
	return append(failures, c.validate()...), nil
}
