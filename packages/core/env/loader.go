package env

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

type Environment struct {
	Name      string
	Variables map[string]any
}

// LoadEnvironment picks the named environment out of the config file's
// environments section. An empty name yields an empty environment.
func LoadEnvironment(envName string, configEnvs map[string]map[string]any) (*Environment, error) {
	env := &Environment{
		Name:      envName,
		Variables: make(map[string]any),
	}
	if envName == "" {
		return env, nil
	}

	vars, ok := configEnvs[envName]
	if !ok {
		names := make([]string, 0, len(configEnvs))
		for name := range configEnvs {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown environment %q (available: %s)", envName, strings.Join(names, ", "))
	}
	for k, v := range vars {
		env.Variables[k] = v
	}
	return env, nil
}

func MergeVariables(sources ...map[string]any) map[string]any {
	result := make(map[string]any)
	for _, src := range sources {
		for k, v := range src {
			result[k] = v
		}
	}
	return result
}

// LoadSystemEnv returns process environment variables carrying prefix,
// with the prefix stripped. TKRUN_VAR_token=x becomes token=x.
func LoadSystemEnv(prefix string) map[string]any {
	result := make(map[string]any)
	for _, e := range os.Environ() {
		key, value, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		if prefix == "" {
			result[key] = value
		} else if len(key) > len(prefix) && strings.HasPrefix(key, prefix) {
			result[key[len(prefix):]] = value
		}
	}
	return result
}

// ParseAssignments turns `name=value` pairs from the command line into
// variables.
func ParseAssignments(pairs []string) (map[string]any, error) {
	result := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid variable %q (expected name=value)", pair)
		}
		result[k] = v
	}
	return result, nil
}
