// Package hh talks to the HeadHunter API on behalf of users who granted
// access through OAuth 2.
package hh

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"io"
	"net/http"
	"net/url"
	"resume-scheduler/internal/action"
	"resume-scheduler/internal/model"
	"strings"
	"time"
)

const (
	DefaultAPIURL  = "https://api.hh.ru"
	DefaultSiteURL = "https://hh.ru"

	stateKeyLength = 32
	maxErrorBody   = 512
)

var ErrNotAuthorized = errors.New("user has not authorized access")

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	UserAgent    string
	// Secret is mixed into the OAuth state of every authorization link.
	Secret  string
	APIURL  string
	SiteURL string
}

type Resume struct {
	Id        string `json:"id"`
	Title     string `json:"title"`
	City      string `json:"city"`
	URL       string `json:"url"`
	UpdatedAt string `json:"updatedAt"`
}

type Client struct {
	oauth      *oauth2.Config
	users      model.UserStorage
	httpClient *http.Client
	apiURL     string
	userAgent  string
	stateKey   []byte
}

func NewClient(cfg Config, users model.UserStorage) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("client id and client secret are required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.SiteURL == "" {
		cfg.SiteURL = DefaultSiteURL
	}

	// A fresh key on every start invalidates links issued by earlier runs.
	stateKey := make([]byte, stateKeyLength)
	if _, err := rand.Read(stateKey); err != nil {
		return nil, fmt.Errorf("failed generating state key: %w", err)
	}
	stateKey = append(stateKey, cfg.Secret...)

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  strings.TrimRight(cfg.SiteURL, "/") + "/oauth/authorize",
				TokenURL: strings.TrimRight(cfg.SiteURL, "/") + "/oauth/token",
			},
		},
		users:      users,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		userAgent:  cfg.UserAgent,
		stateKey:   stateKey,
	}, nil
}

// AuthCodeURL returns the link a user follows to grant access.
func (c *Client) AuthCodeURL(owner string) string {
	return c.oauth.AuthCodeURL(c.state(owner), oauth2.SetAuthURLParam("redirect_uri", c.redirectURL(owner)))
}

func (c *Client) ValidState(owner, state string) bool {
	return hmac.Equal([]byte(state), []byte(c.state(owner)))
}

// Authorize exchanges an authorization code and stores the token of owner.
func (c *Client) Authorize(ctx context.Context, owner, code string) error {
	token, err := c.oauth.Exchange(ctx, code, oauth2.SetAuthURLParam("redirect_uri", c.redirectURL(owner)))
	if err != nil {
		return fmt.Errorf("failed exchanging authorization code: %w", err)
	}
	if err = c.users.SaveToken(ctx, owner, token); err != nil {
		return err
	}
	log.WithField("owner", owner).Info("User authorized")
	return nil
}

// Execute publishes target, which makes HeadHunter bump the resume in search
// results.
func (c *Client) Execute(ctx context.Context, owner, target string) error {
	return c.PublishResume(ctx, owner, target)
}

func (c *Client) PublishResume(ctx context.Context, owner, resumeId string) error {
	response, err := c.do(ctx, owner, http.MethodPost, "/resumes/"+url.PathEscape(resumeId)+"/publish")
	if err != nil {
		return err
	}
	defer response.Body.Close()
	return checkStatus(response, http.StatusNoContent)
}

type rawResume struct {
	Id    string `json:"id"`
	Title string `json:"title"`
	Area  struct {
		Name string `json:"name"`
	} `json:"area"`
	AlternateURL string `json:"alternate_url"`
	UpdatedAt    string `json:"updated_at"`
}

// Resumes lists the resumes of owner.
func (c *Client) Resumes(ctx context.Context, owner string) ([]Resume, error) {
	response, err := c.do(ctx, owner, http.MethodGet, "/resumes/mine")
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()
	if err = checkStatus(response, http.StatusOK); err != nil {
		return nil, err
	}

	var page struct {
		Items []rawResume `json:"items"`
	}
	if err = json.NewDecoder(response.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed decoding resumes: %w", err)
	}
	resumes := make([]Resume, len(page.Items))
	for i, raw := range page.Items {
		resumes[i] = Resume{raw.Id, raw.Title, raw.Area.Name, raw.AlternateURL, raw.UpdatedAt}
	}
	return resumes, nil
}

func (c *Client) do(ctx context.Context, owner, method, path string) (*http.Response, error) {
	token, err := c.token(ctx, owner)
	if err != nil {
		return nil, err
	}

	request, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed creating request: %w", err)
	}
	token.SetAuthHeader(request)
	if c.userAgent != "" {
		request.Header.Set("User-Agent", c.userAgent)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, &action.Failure{Category: action.Unknown, Err: err}
	}
	return response, nil
}

// token returns a valid access token of owner, refreshing and storing it
// when it has expired.
func (c *Client) token(ctx context.Context, owner string) (*oauth2.Token, error) {
	user, err := c.users.GetUser(ctx, owner)
	if errors.Is(err, model.ErrorNotFound) || (err == nil && user.Token == nil) {
		return nil, &action.Failure{Category: action.Unauthorized, Err: ErrNotAuthorized}
	}
	if err != nil {
		return nil, err
	}

	refreshCtx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.oauth.TokenSource(refreshCtx, user.Token).Token()
	if err != nil {
		return nil, &action.Failure{Category: action.Unauthorized, Err: fmt.Errorf("failed refreshing token: %w", err)}
	}
	if token.AccessToken != user.Token.AccessToken {
		if err = c.users.SaveToken(ctx, owner, token); err != nil {
			log.WithFields(log.Fields{"owner": owner, "error": err}).Error("Failed saving refreshed token")
		}
	}
	return token, nil
}

func (c *Client) state(owner string) string {
	mac := hmac.New(sha256.New, c.stateKey)
	mac.Write([]byte(owner))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) redirectURL(owner string) string {
	redirect, err := url.Parse(c.oauth.RedirectURL)
	if err != nil {
		return c.oauth.RedirectURL
	}
	query := redirect.Query()
	query.Set("user", owner)
	redirect.RawQuery = query.Encode()
	return redirect.String()
}

func checkStatus(response *http.Response, expected int) error {
	if response.StatusCode == expected {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
	return action.NewStatusFailure(response.StatusCode, fmt.Errorf("unexpected response %q", strings.TrimSpace(string(body))))
}
