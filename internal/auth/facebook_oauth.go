package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultFacebookAuthURL     = "https://www.facebook.com/v19.0/dialog/oauth"
	defaultFacebookTokenURL    = "https://graph.facebook.com/v19.0/oauth/access_token"
	defaultFacebookUserInfoURL = "https://graph.facebook.com/v19.0/me"
)

// FacebookOAuthConfig はFacebook OAuthプロバイダーの設定。
type FacebookOAuthConfig struct {
	AppID       string
	AppSecret   string
	RedirectURL string

	// IdPラウンドトリップのタイムアウト。0の場合は10秒。
	Timeout time.Duration

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

// FacebookOAuthProvider はFacebook OAuth 2.0による認証を提供する。
type FacebookOAuthProvider struct {
	config FacebookOAuthConfig
	client *http.Client
}

// NewFacebookOAuthProvider はFacebookOAuthProviderを生成する。
// IdPへの全リクエストに設定されたタイムアウトが適用され、
// タイムアウトはログイン失敗として呼び出し元に伝搬する。
func NewFacebookOAuthProvider(config FacebookOAuthConfig) *FacebookOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultFacebookAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultFacebookTokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultFacebookUserInfoURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &FacebookOAuthProvider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// GetLoginURL はFacebook OAuthの認証URLを生成する。
// スコープにはemail, public_profileを含む。
func (p *FacebookOAuthProvider) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.AppID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {"email,public_profile"},
		"state":         {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// facebookTokenResponse はFacebookのトークンエンドポイントのレスポンス。
type facebookTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// facebookUserInfo はGraph APIの/meエンドポイントのレスポンス。
type facebookUserInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
func (p *FacebookOAuthProvider) ExchangeCode(ctx context.Context, code string) (*ExternalIdentity, error) {
	// 1. 認可コードをアクセストークンに交換
	tokenResp, err := p.exchangeToken(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	// 2. アクセストークンでユーザー情報を取得
	userInfo, err := p.fetchUserInfo(ctx, tokenResp.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	return &ExternalIdentity{
		ProviderUserID: userInfo.ID,
		Email:          userInfo.Email,
		Name:           userInfo.Name,
		PhotoURL:       userInfo.Picture.Data.URL,
		Provider:       "facebook",
	}, nil
}

// exchangeToken は認可コードをアクセストークンに交換する。
func (p *FacebookOAuthProvider) exchangeToken(ctx context.Context, code string) (*facebookTokenResponse, error) {
	params := url.Values{
		"code":          {code},
		"client_id":     {p.config.AppID},
		"client_secret": {p.config.AppSecret},
		"redirect_uri":  {p.config.RedirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.TokenURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp facebookTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	return &tokenResp, nil
}

// fetchUserInfo はアクセストークンでGraph APIのユーザー情報を取得する。
func (p *FacebookOAuthProvider) fetchUserInfo(ctx context.Context, accessToken string) (*facebookUserInfo, error) {
	params := url.Values{
		"fields":       {"id,name,email,picture"},
		"access_token": {accessToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var userInfo facebookUserInfo
	if err := json.Unmarshal(body, &userInfo); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}

	if userInfo.ID == "" {
		return nil, fmt.Errorf("empty id in user info response")
	}

	return &userInfo, nil
}

// compile-time interface check
var _ OAuthProvider = (*FacebookOAuthProvider)(nil)
