package camera

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"go.viam.com/depthsave/logging"
)

// A ConfigValidator validates a source's typed attributes.
type ConfigValidator interface {
	Validate(path string) error
}

// Registration describes how to construct a FrameSource model.
type Registration[ConfigT ConfigValidator] struct {
	// Constructor builds an unstarted source from its validated config.
	Constructor func(ctx context.Context, conf ConfigT, logger logging.Logger) (FrameSource, error)
}

type genericRegistration struct {
	construct func(ctx context.Context, attrs map[string]interface{}, logger logging.Logger) (FrameSource, error)
	validate  func(path string, attrs map[string]interface{}) error
}

var (
	registryMu sync.RWMutex
	registry   = map[string]genericRegistration{}
)

// RegisterSource registers a source model. It panics on duplicate or empty registrations and is
// meant to be called from init functions.
func RegisterSource[ConfigT ConfigValidator](model string, reg Registration[ConfigT]) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if model == "" {
		panic(errors.New("cannot register a source with an empty model"))
	}
	if _, old := registry[model]; old {
		panic(errors.Errorf("trying to register two sources with same model: %q", model))
	}
	if reg.Constructor == nil {
		panic(errors.Errorf("cannot register a nil constructor for model: %q", model))
	}

	registry[model] = genericRegistration{
		construct: func(ctx context.Context, attrs map[string]interface{}, logger logging.Logger) (FrameSource, error) {
			conf, err := NativeConfig[ConfigT](attrs)
			if err != nil {
				return nil, err
			}
			if err := conf.Validate(model); err != nil {
				return nil, err
			}
			return reg.Constructor(ctx, conf, logger)
		},
		validate: func(path string, attrs map[string]interface{}) error {
			conf, err := NativeConfig[ConfigT](attrs)
			if err != nil {
				return errors.Wrap(err, path)
			}
			return conf.Validate(path)
		},
	}
}

// RegisteredSources returns the sorted names of all registered source models.
func RegisteredSources() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	models := make([]string, 0, len(registry))
	for model := range registry {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

func lookup(model string) (genericRegistration, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[model]
	if !ok {
		return genericRegistration{}, errors.Errorf("unknown source model %q (registered: %v)", model, registeredLocked())
	}
	return reg, nil
}

func registeredLocked() []string {
	models := make([]string, 0, len(registry))
	for model := range registry {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// ValidateSource checks that model is registered and that attrs decode into a valid config.
func ValidateSource(path, model string, attrs map[string]interface{}) error {
	reg, err := lookup(model)
	if err != nil {
		return errors.Wrap(err, path)
	}
	return reg.validate(path, attrs)
}

// NewSource constructs an unstarted source of the given model from raw attributes.
func NewSource(
	ctx context.Context,
	model string,
	attrs map[string]interface{},
	logger logging.Logger,
) (FrameSource, error) {
	reg, err := lookup(model)
	if err != nil {
		return nil, err
	}
	return reg.construct(ctx, attrs, logger)
}

// NativeConfig decodes raw attributes into a typed config using its json tags. Pointer config
// types are allocated.
func NativeConfig[T any](attrs map[string]interface{}) (T, error) {
	var out T
	var forResult interface{}
	toT := reflect.TypeOf(out)
	if toT != nil && toT.Kind() == reflect.Ptr {
		var ok bool
		out, ok = reflect.New(toT.Elem()).Interface().(T)
		if !ok {
			return out, errors.Errorf("failed to allocate default config type %T", out)
		}
		forResult = out
	} else {
		forResult = &out
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           forResult,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(attrs); err != nil {
		return out, err
	}
	return out, nil
}
