package wxwork

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is an HTTP client for the WeChat Work external contact APIs.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError is a non-zero errcode in an otherwise successful HTTP response.
type APIError struct {
	Code    int    `json:"errcode"`
	Message string `json:"errmsg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wxwork api error %d: %s", e.Code, e.Message)
}

// Contact is one external contact together with the follow info recorded for
// the staff member who fetched it.
type Contact struct {
	ExternalUserID string `json:"external_userid"`
	Name           string `json:"name"`
	Position       string `json:"position"`
	Avatar         string `json:"avatar"`
	CorpName       string `json:"corp_name"`
	CorpFullName   string `json:"corp_full_name"`
	Type           int    `json:"type"`
	Gender         int    `json:"gender"`
	UnionID        string `json:"unionid"`

	Remark         string   `json:"remark"`
	Description    string   `json:"description"`
	CreateTime     int64    `json:"createtime"`
	TagIDs         []string `json:"tag_id"`
	RemarkCorpName string   `json:"remark_corp_name"`
	RemarkMobiles  []string `json:"remark_mobiles"`
	AddWay         int      `json:"add_way"`
	State          string   `json:"state"`
	ChannelNick    string   `json:"channel_nickname"`
}

// ContactPage is one page of a staff member's external contacts. An empty
// NextCursor means the listing is exhausted.
type ContactPage struct {
	Contacts   []Contact
	NextCursor string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetAccessToken exchanges corp credentials for an access token and its
// lifetime in seconds.
func (c *Client) GetAccessToken(ctx context.Context, corpID, corpSecret string) (string, int, error) {
	endpoint := fmt.Sprintf("%s/cgi-bin/gettoken?corpid=%s&corpsecret=%s",
		c.baseURL, url.QueryEscape(corpID), url.QueryEscape(corpSecret))

	var resp struct {
		APIError
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := c.doGet(ctx, endpoint, &resp); err != nil {
		return "", 0, err
	}
	if resp.Code != 0 {
		return "", 0, &resp.APIError
	}
	return resp.AccessToken, resp.ExpiresIn, nil
}

// ListFollowUsers returns the staff ids configured to use external contact
// features in the corp.
func (c *Client) ListFollowUsers(ctx context.Context, accessToken string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/cgi-bin/externalcontact/get_follow_user_list?access_token=%s",
		c.baseURL, url.QueryEscape(accessToken))

	var resp struct {
		APIError
		FollowUser []string `json:"follow_user"`
	}
	if err := c.doGet(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, &resp.APIError
	}
	return resp.FollowUser, nil
}

type batchGetRequest struct {
	UserIDList []string `json:"userid_list"`
	Cursor     string   `json:"cursor,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

type batchGetResponse struct {
	APIError
	ExternalContactList []struct {
		ExternalContact struct {
			ExternalUserID string `json:"external_userid"`
			Name           string `json:"name"`
			Position       string `json:"position"`
			Avatar         string `json:"avatar"`
			CorpName       string `json:"corp_name"`
			CorpFullName   string `json:"corp_full_name"`
			Type           int    `json:"type"`
			Gender         int    `json:"gender"`
			UnionID        string `json:"unionid"`
		} `json:"external_contact"`
		FollowInfo struct {
			Remark         string   `json:"remark"`
			Description    string   `json:"description"`
			CreateTime     int64    `json:"createtime"`
			TagID          []string `json:"tag_id"`
			RemarkCorpName string   `json:"remark_corp_name"`
			RemarkMobiles  []string `json:"remark_mobiles"`
			AddWay         int      `json:"add_way"`
			State          string   `json:"state"`
			WechatChannels struct {
				Nickname string `json:"nickname"`
			} `json:"wechat_channels"`
		} `json:"follow_info"`
	} `json:"external_contact_list"`
	NextCursor string `json:"next_cursor"`
}

// FetchContactPage retrieves one page of a staff member's external contacts
// with their follow info.
func (c *Client) FetchContactPage(ctx context.Context, accessToken, staffID, cursor string, limit int) (*ContactPage, error) {
	endpoint := fmt.Sprintf("%s/cgi-bin/externalcontact/batch/get_by_user?access_token=%s",
		c.baseURL, url.QueryEscape(accessToken))

	var resp batchGetResponse
	body := batchGetRequest{UserIDList: []string{staffID}, Cursor: cursor, Limit: limit}
	if err := c.doPost(ctx, endpoint, body, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, &resp.APIError
	}

	page := &ContactPage{NextCursor: resp.NextCursor}
	for _, entry := range resp.ExternalContactList {
		ec, fi := entry.ExternalContact, entry.FollowInfo
		page.Contacts = append(page.Contacts, Contact{
			ExternalUserID: ec.ExternalUserID,
			Name:           ec.Name,
			Position:       ec.Position,
			Avatar:         ec.Avatar,
			CorpName:       ec.CorpName,
			CorpFullName:   ec.CorpFullName,
			Type:           ec.Type,
			Gender:         ec.Gender,
			UnionID:        ec.UnionID,
			Remark:         fi.Remark,
			Description:    fi.Description,
			CreateTime:     fi.CreateTime,
			TagIDs:         fi.TagID,
			RemarkCorpName: fi.RemarkCorpName,
			RemarkMobiles:  fi.RemarkMobiles,
			AddWay:         fi.AddWay,
			State:          fi.State,
			ChannelNick:    fi.WechatChannels.Nickname,
		})
	}
	return page, nil
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) doPost(ctx context.Context, endpoint string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	return dec.Decode(out)
}
