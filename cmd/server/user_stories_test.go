package main

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"
)

// Test_UserStories tests the user stories of the application.
// These are end-to-end tests and won't check the nitty-gritty details or edge cases.
func Test_UserStories(t *testing.T) {
	t.Run("as a visitor, I want to sign up, verify, login and reset my password", testEnv(func(t *testing.T) {
		logs := runAppForTest(t)

		c := newStoryClient(t)

		t.Run("sign up for an account", func(t *testing.T) {
			form := url.Values{
				"email":    {"agent@example.com"},
				"password": {"reallyStrongPassword1"},
			}

			c.mustPostForm(t, "/signup", form, http.StatusAccepted)
		})

		var verifyURL string

		t.Run("receive the verification email", func(t *testing.T) {
			verifyURL = waitAndCaptureLink(t, logs, "agent@example.com", "/verify/")
			t.Logf("found verification url: %s", verifyURL)
		})

		t.Run("verify my email address", func(t *testing.T) {
			c.mustGet(t, verifyURL, http.StatusOK)
		})

		t.Run("login to my account", func(t *testing.T) {
			form := url.Values{
				"email":    {"agent@example.com"},
				"password": {"reallyStrongPassword1"},
			}

			c.mustPostForm(t, "/login", form, http.StatusOK)
		})

		t.Run("logout again", func(t *testing.T) {
			c.mustPostForm(t, "/logout", url.Values{}, http.StatusOK)
		})

		var resetURL string

		t.Run("request a password reset", func(t *testing.T) {
			form := url.Values{
				"email": {"agent@example.com"},
			}

			c.mustPostForm(t, "/forgot-password", form, http.StatusAccepted)

			resetURL = waitAndCaptureLink(t, logs, "agent@example.com", "/reset/")
			t.Logf("found reset url: %s", resetURL)
		})

		t.Run("choose a new password", func(t *testing.T) {
			form := url.Values{
				"password": {"evenStrongerPassword2"},
			}

			c.mustPostFormURL(t, resetURL, form, http.StatusOK)
		})

		t.Run("login with the new password", func(t *testing.T) {
			form := url.Values{
				"email":    {"agent@example.com"},
				"password": {"evenStrongerPassword2"},
			}

			c.mustPostForm(t, "/login", form, http.StatusOK)
		})
	}))
}

// runAppForTest runs the app while the test is running.
// This function returns after the app is confirmed to be up and stops
// the app when the test is cleaned up.
func runAppForTest(t *testing.T) *safeBuffer {
	t.Helper()

	buf := newBuffer()

	// we will stop the server after a timeout or when the test is cleaned up.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(func() {
		cancel()

		if t.Failed() {
			t.Logf("app output:\n%s", buf.String())
		}
	})

	go func() {
		code := run(ctx, buf)
		if code != 0 {
			t.Errorf("run exited with code %d", code)
		}

		cancel()
	}()

	err := waitForStatusOK(ctx, publicURL)
	if err != nil {
		t.Fatalf("error waiting for status ok: %v", err)
	}

	return buf
}

// storyClient is an http client that tracks cookies and provides a
// csrf token for unsafe requests the way a browser session would.
type storyClient struct {
	http *http.Client
}

func newStoryClient(t *testing.T) *storyClient {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}

	return &storyClient{
		http: &http.Client{
			Timeout: httpClientTimeout,
			Jar:     jar,
		},
	}
}

// csrfToken fetches a csrf token.
func (c *storyClient) csrfToken(t *testing.T) string {
	t.Helper()

	res, err := c.http.Get(publicURL)
	if err != nil {
		t.Fatalf("unexpected error during get request: %v", err)
	}
	defer res.Body.Close()

	token := res.Header.Get("X-CSRF-Token")
	if token == "" {
		t.Fatalf("no csrf token in response")
	}

	return token
}

func (c *storyClient) mustGet(t *testing.T, rawURL string, wantStatus int) {
	t.Helper()

	res, err := c.http.Get(rawURL)
	if err != nil {
		t.Fatalf("unexpected error during get request: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != wantStatus {
		t.Fatalf("unexpected status code: %d", res.StatusCode)
	}
}

func (c *storyClient) mustPostForm(t *testing.T, path string, form url.Values, wantStatus int) {
	t.Helper()

	c.mustPostFormURL(t, baseURL+path, form, wantStatus)
}

func (c *storyClient) mustPostFormURL(t *testing.T, rawURL string, form url.Values, wantStatus int) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("unexpected error creating post request: %v", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRF-Token", c.csrfToken(t))

	res, err := c.http.Do(req)
	if err != nil {
		t.Fatalf("unexpected error during post request: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != wantStatus {
		t.Fatalf("unexpected status code: %d", res.StatusCode)
	}
}

// waitAndCaptureLink waits for an email to the address to show up in
// the logs and extracts the first redemption link with the wanted path.
func waitAndCaptureLink(t *testing.T, logs *safeBuffer, addr, path string) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	r := regexp.MustCompile(`\bhttps?://localhost:8888` + path + `\S+`)

	captureFunc := func() (string, bool) {
		lookFor := []string{
			`msg="send email"`,
			`recipient=` + addr,
		}

	OUTER:
		for _, line := range strings.Split(logs.String(), "\n") {
			for _, l := range lookFor {
				if !strings.Contains(line, l) {
					continue OUTER
				}
			}

			link := r.FindString(strings.ReplaceAll(line, `\n`, " "))
			if link != "" {
				return link, true
			}
		}

		return "", false
	}

	for {
		select {
		case <-ticker.C:
			if link, ok := captureFunc(); ok {
				return link
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for email to %s", addr)
		}
	}
}
