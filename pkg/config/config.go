// Seqlist uses flags and a single config file for configuration.
// The config file holds flag values keyed by flag name; it's either YAML (.yaml / .yml) or JSON (.json):
//
//	log_level: debug
//	address: ":6380"
//
// Flags given on the command line always win over the config file.

package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"
)

var configFilePath = flag.String("config_file", "config.yaml", "Path to the configuration file (.yaml, .yml or .json).")

// skippedConfigFlags is the list of command line flags that can't be set from, and needn't be listed in, the config.
var skippedConfigFlags = []string{"print_version", "config_file"}

// InitFlags parses the command line flags, then sets the remaining flags from the file given by -config_file.
// It should be called after defining all flags and before using them.
func InitFlags() {
	flag.Parse()

	if *configFilePath == "" {
		slog.Info("Config file not specified. Skipping config initialization.")
		return
	}
	if err := LoadFile(flag.CommandLine, *configFilePath); errors.Is(err, os.ErrNotExist) {
		slog.Warn("Config file does not exist.", "path", *configFilePath, "error", err)
	} else if err != nil { // Keep the default flag values.
		slog.Error("Failed to load config file.", "path", *configFilePath, "error", err)
	}
}

// LoadFile reads the config file at `path` and applies it to the flags in `flagSet`.
func LoadFile(flagSet *flag.FlagSet, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	values, err := parseConfig(filepath.Ext(path), content)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return setConfigFlags(flagSet, values)
}

// parseConfig converts the config file `content` into flag values, picking the format from the file extension.
func parseConfig(extension string, content []byte) (map[ /*flagName*/ string] /*flagValue*/ string, error) {
	switch strings.ToLower(extension) {
	case ".yaml", ".yml":
		return parseYAMLConfig(content)
	case ".json":
		return parseJSONConfig(content)
	default:
		return nil, fmt.Errorf("unsupported config file extension '%s'", extension)
	}
}

// parseYAMLConfig reads a flat YAML mapping. Duplicate keys are rejected by the YAML decoder itself.
func parseYAMLConfig(content []byte) (map[string]string, error) {
	raw := make(map[string]any)
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, err
	}
	values := make(map[string]string, len(raw))
	for name, value := range raw {
		var stringValue string
		switch typed := value.(type) {
		case string:
			stringValue = typed
		case bool:
			stringValue = strconv.FormatBool(typed)
		case int:
			stringValue = strconv.Itoa(typed)
		case int64:
			stringValue = strconv.FormatInt(typed, 10)
		case uint64:
			stringValue = strconv.FormatUint(typed, 10)
		case float64:
			stringValue = strconv.FormatFloat(typed, 'g', -1, 64)
		case time.Time:
			stringValue = typed.Format(time.RFC3339Nano)
		case nil:
			return nil, fmt.Errorf("flag '%s' has no value", name)
		default: // Sequences and mappings.
			return nil, fmt.Errorf("flag '%s' must be a scalar, got %T", name, value)
		}
		values[name] = stringValue
	}
	return values, nil
}

// parseJSONConfig reads a flat JSON object through the protobuf Struct well-known type.
func parseJSONConfig(content []byte) (map[string]string, error) {
	conf := new(structpb.Struct)
	if err := protojson.Unmarshal(content, conf); err != nil {
		return nil, err
	}
	values := make(map[string]string, len(conf.GetFields()))
	for name, value := range conf.GetFields() {
		switch kind := value.GetKind().(type) {
		case *structpb.Value_StringValue:
			values[name] = kind.StringValue
		case *structpb.Value_BoolValue:
			values[name] = strconv.FormatBool(kind.BoolValue)
		case *structpb.Value_NumberValue:
			values[name] = strconv.FormatFloat(kind.NumberValue, 'f', -1, 64)
		case *structpb.Value_NullValue:
			return nil, fmt.Errorf("flag '%s' has no value", name)
		default: // Lists and nested objects.
			return nil, fmt.Errorf("flag '%s' must be a scalar, got %T", name, kind)
		}
	}
	return values, nil
}

// setConfigFlags sets the given flag values on `flagSet`, skipping flags already set on the command line.
func setConfigFlags(flagSet *flag.FlagSet, values map[string]string) error {
	setExplicitly := make(map[string]struct{})
	flagSet.Visit(func(f *flag.Flag) { setExplicitly[f.Name] = struct{}{} })

	for _, flagName := range slices.Sorted(maps.Keys(values)) {
		if slices.Contains(skippedConfigFlags, flagName) {
			return fmt.Errorf("flag '%s' can't be set from the config file", flagName)
		}
		if flagSet.Lookup(flagName) == nil {
			return fmt.Errorf("flag '%s' is not defined", flagName)
		}
		if _, onCommandLine := setExplicitly[flagName]; onCommandLine {
			slog.Debug("Flag set on the command line, ignoring config file value.", "flag", flagName)
			continue
		}
		if err := flagSet.Set(flagName, values[flagName]); err != nil {
			return fmt.Errorf("failed to set flag %s: %w", flagName, err)
		}
	}
	return nil
}

// CollectUnregisteredFlags returns an error for each flag of `flagSet` that has no entry in the config file at
// `path`. Keeping every flag in the shipped config file makes it the reference of all settings.
func CollectUnregisteredFlags(flagSet *flag.FlagSet, path string) []error {
	content, err := os.ReadFile(path)
	if err != nil {
		return []error{fmt.Errorf("failed to read config file: %w", err)}
	}
	values, err := parseConfig(filepath.Ext(path), content)
	if err != nil {
		return []error{err}
	}
	errs := make([]error, 0)
	flagSet.VisitAll(func(f *flag.Flag) {
		if strings.HasPrefix(f.Name, "test.") { // Skip test flags.
			return
		}
		if slices.Contains(skippedConfigFlags, f.Name) {
			return
		}
		if _, flagHasConfigEntry := values[f.Name]; !flagHasConfigEntry {
			errs = append(errs, fmt.Errorf("flag '%s' has not been defined in config file %s", f.Name, path))
		}
	})
	return errs
}
