package main

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/stayspot/stayspot/internal/auth"
	"github.com/stayspot/stayspot/internal/email"
	"github.com/stayspot/stayspot/internal/krypto"
)

// httpConfig is the configuration for the HTTP server.
type httpConfig struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
}

// emailConfig is the configuration for outgoing email.
type emailConfig struct {
	from email.Address

	// If no server token is provided emails are logged instead of sent.
	postmarkAPIURL        *url.URL
	postmarkServerToken   krypto.Secret
	postmarkMessageStream string
}

// config is the configuration for the server command.
type config struct {
	http    httpConfig
	email   emailConfig
	dbFile  string
	baseURL *url.URL

	csrfKey      krypto.Key
	sessionKey   krypto.Key
	secureCookie bool

	workerTimeout     time.Duration
	verifyTokenExpiry time.Duration
	resetTokenExpiry  time.Duration
}

// defaultConfig returns a config with sane default values.
func defaultConfig() config {
	return config{
		http: httpConfig{
			addr:            ":8888",
			readTimeout:     time.Second * 5,
			writeTimeout:    time.Second * 10,
			idleTimeout:     time.Second * 120,
			shutdownTimeout: time.Second * 15,
		},
		email: emailConfig{
			postmarkAPIURL: &url.URL{
				Scheme: "https",
				Host:   "api.postmarkapp.com",
				Path:   "/email",
			},
			postmarkMessageStream: "outbound",
		},
		dbFile: "stayspot.db",
		baseURL: &url.URL{
			Scheme: "http",
			Host:   "localhost:8888",
		},
		secureCookie:      true,
		workerTimeout:     auth.DefaultWorkerTimeout,
		verifyTokenExpiry: auth.DefaultVerifyTokenExpiry,
		resetTokenExpiry:  auth.DefaultResetTokenExpiry,
	}
}

// requiredEnv are the environment variables that must be set, they have
// no usable default.
var requiredEnv = []string{
	"CSRF_KEY",
	"SESSION_KEY",
	"EMAIL_FROM",
}

// envMap maps environment variable names to fields in the config struct.
var envMap = map[string]func(v string, c *config) error{
	"HTTP_ADDR": func(v string, c *config) error {
		c.http.addr = v
		return nil
	},
	"HTTP_READ_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.readTimeout, 0, math.MaxInt64)
	},
	"HTTP_WRITE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.writeTimeout, 0, math.MaxInt64)
	},
	"HTTP_IDLE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.idleTimeout, 0, math.MaxInt64)
	},
	"HTTP_SHUTDOWN_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.shutdownTimeout, 0, math.MaxInt64)
	},
	"DB_FILENAME": func(v string, c *config) error {
		if v == "" {
			return fmt.Errorf("empty database filename")
		}
		c.dbFile = v
		return nil
	},
	"BASE_URL": func(v string, c *config) error {
		u, err := url.Parse(v)
		if err != nil {
			return err
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("base url needs a scheme and host: %s", v)
		}
		c.baseURL = u
		return nil
	},
	"CSRF_KEY": func(v string, c *config) error {
		k, err := krypto.ParseKey(v)
		if err != nil {
			return err
		}
		c.csrfKey = k
		return nil
	},
	"SESSION_KEY": func(v string, c *config) error {
		k, err := krypto.ParseKey(v)
		if err != nil {
			return err
		}
		c.sessionKey = k
		return nil
	},
	"SECURE_COOKIE": func(v string, c *config) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.secureCookie = b
		return nil
	},
	"EMAIL_FROM": func(v string, c *config) error {
		a, err := email.ParseAddress(v)
		if err != nil {
			return err
		}
		c.email.from = a
		return nil
	},
	"POSTMARK_API_URL": func(v string, c *config) error {
		u, err := url.Parse(v)
		if err != nil {
			return err
		}
		c.email.postmarkAPIURL = u
		return nil
	},
	"POSTMARK_SERVER_TOKEN": func(v string, c *config) error {
		c.email.postmarkServerToken = krypto.NewSecret(v)
		return nil
	},
	"POSTMARK_MESSAGE_STREAM": func(v string, c *config) error {
		c.email.postmarkMessageStream = v
		return nil
	},
	"WORKER_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.workerTimeout, time.Second, math.MaxInt64)
	},
	"TOKEN_TTL_VERIFY": func(v string, c *config) error {
		return confDuration(v, &c.verifyTokenExpiry, time.Minute, math.MaxInt64)
	},
	"TOKEN_TTL_RESET": func(v string, c *config) error {
		return confDuration(v, &c.resetTokenExpiry, time.Minute, math.MaxInt64)
	},
}

// configFromEnv returns a config with values from the environment. It falls
// back to default values for any missing environment variables.
//
// It does a best effort to validate provided values, so that mistakes are
// caught ASAP. However, there is no guarantee that the returned config
// is valid and will work.
func configFromEnv() (config, error) {
	c := defaultConfig()

	var errs []error

	for _, key := range requiredEnv {
		if _, ok := os.LookupEnv(key); !ok {
			errs = append(errs, fmt.Errorf("missing required env variable %s", key))
		}
	}

	for key, mf := range envMap {
		if val, ok := os.LookupEnv(key); ok {
			if err := mf(val, &c); err != nil {
				errs = append(errs, fmt.Errorf("invalid env variable %s: %w", key, err))
			}
		}
	}

	return c, errors.Join(errs...)
}

// confDuration attempts to parse v into tgt and checks if the result is in
// the provided range (inclusive).
func confDuration(v string, tgt *time.Duration, min, max time.Duration) error {
	dur, err := time.ParseDuration(v)
	if err != nil {
		return err
	}

	if dur < min || dur > max {
		return fmt.Errorf("duration %s not in range [%s, %s] (inclusive)", dur, min, max)
	}

	*tgt = dur

	return nil
}
