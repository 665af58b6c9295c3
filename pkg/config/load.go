package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/magiconair/properties"
)

// Keys with dedicated handling in the properties file.
const (
	keyBootstrapServers   = "bootstrap.servers"
	keySecurityProtocol   = "security.protocol"
	keySASLMechanism      = "sasl.mechanism"
	keySASLMechanisms     = "sasl.mechanisms"
	keySASLUsername       = "sasl.username"
	keySASLPassword       = "sasl.password"
	keySASLJAASConfig     = "sasl.jaas.config"
	keySchemaRegistryURL  = "schema.registry.url"
	keySchemaRegistryAuth = "schema.registry.basic.auth.user.info"
)

// Java client settings that librdkafka rejects as unknown properties.
var javaOnlyKeys = map[string]struct{}{
	"basic.auth.credentials.source": {},
	"key.serializer":                {},
	"value.serializer":              {},
	"key.deserializer":              {},
	"value.deserializer":            {},
	"client.dns.lookup":             {},
}

var (
	jaasUsernameRe = regexp.MustCompile(`username\s*=\s*"([^"]*)"`)
	jaasPasswordRe = regexp.MustCompile(`password\s*=\s*"([^"]*)"`)
)

// Load reads the properties file at path and applies environment overrides.
// An empty path loads from the environment only.
func Load(path string) (Bundle, error) {
	return load(path, env.Options{})
}

func load(path string, opts env.Options) (Bundle, error) {
	var b Bundle
	if path != "" {
		var err error
		b, err = LoadFile(path)
		if err != nil {
			return Bundle{}, err
		}
	}

	var overrides Bundle
	if err := env.ParseWithOptions(&overrides, opts); err != nil {
		return Bundle{}, fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	b.merge(overrides)
	return b, nil
}

// LoadFile parses a Java-style client properties file.
func LoadFile(path string) (Bundle, error) {
	l := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := l.LoadFile(path)
	if err != nil {
		return Bundle{}, fmt.Errorf("failed to load properties file %s: %w", path, err)
	}
	b, err := fromProperties(p)
	if err != nil {
		return Bundle{}, fmt.Errorf("invalid properties file %s: %w", path, err)
	}
	return b, nil
}

// LoadString parses properties held in memory.
func LoadString(s string) (Bundle, error) {
	l := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := l.LoadBytes([]byte(s))
	if err != nil {
		return Bundle{}, fmt.Errorf("failed to parse properties: %w", err)
	}
	return fromProperties(p)
}

func fromProperties(p *properties.Properties) (Bundle, error) {
	b := Bundle{Extra: map[string]string{}}
	for _, key := range p.Keys() {
		// "//" lines parse as a key named "//..." and are treated as comments.
		if strings.HasPrefix(key, "//") {
			continue
		}
		value := strings.TrimSpace(p.GetString(key, ""))

		switch key {
		case keyBootstrapServers:
			b.BootstrapServers = value
		case keySecurityProtocol:
			b.SecurityProtocol = value
		case keySASLMechanism, keySASLMechanisms:
			b.SASLMechanism = value
		case keySASLUsername:
			b.SASLUsername = value
		case keySASLPassword:
			b.SASLPassword = value
		case keySASLJAASConfig:
			user, pass, err := parseJAAS(value)
			if err != nil {
				return Bundle{}, err
			}
			b.SASLUsername, b.SASLPassword = user, pass
		case keySchemaRegistryURL:
			b.SchemaRegistryURL = value
		case keySchemaRegistryAuth:
			user, pass, err := parseUserInfo(value)
			if err != nil {
				return Bundle{}, err
			}
			b.SchemaRegistryUsername, b.SchemaRegistryPassword = user, pass
		default:
			if skipKey(key) {
				continue
			}
			b.Extra[key] = value
		}
	}
	return b, nil
}

// parseJAAS extracts the credentials of a PlainLoginModule JAAS entry.
func parseJAAS(value string) (string, string, error) {
	user := jaasUsernameRe.FindStringSubmatch(value)
	pass := jaasPasswordRe.FindStringSubmatch(value)
	if user == nil || pass == nil {
		return "", "", fmt.Errorf("%s must contain username and password", keySASLJAASConfig)
	}
	return user[1], pass[1], nil
}

func parseUserInfo(value string) (string, string, error) {
	user, pass, ok := strings.Cut(value, ":")
	if !ok {
		return "", "", fmt.Errorf("%s must be in the form user:secret", keySchemaRegistryAuth)
	}
	return strings.TrimSpace(user), strings.TrimSpace(pass), nil
}

func skipKey(key string) bool {
	if strings.HasPrefix(key, "schema.registry.") {
		return true
	}
	_, ok := javaOnlyKeys[key]
	return ok
}

// merge overwrites b with every non-empty field of o.
func (b *Bundle) merge(o Bundle) {
	override(&b.BootstrapServers, o.BootstrapServers)
	override(&b.SecurityProtocol, o.SecurityProtocol)
	override(&b.SASLMechanism, o.SASLMechanism)
	override(&b.SASLUsername, o.SASLUsername)
	override(&b.SASLPassword, o.SASLPassword)
	override(&b.SchemaRegistryURL, o.SchemaRegistryURL)
	override(&b.SchemaRegistryUsername, o.SchemaRegistryUsername)
	override(&b.SchemaRegistryPassword, o.SchemaRegistryPassword)
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
