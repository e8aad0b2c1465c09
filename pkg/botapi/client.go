// Minimal Bot API client (VK Teams flavor): form-encoded GET requests against
// an HTTP endpoint, long polling via events/get.
package botapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/revubot/revubot/pkg/utils"
)

type Config struct {
	Token     string
	APIURL    string
	PollTimeS int
}

type Client struct {
	cfg         Config
	http        *http.Client
	lastEventID int64
	logger      *slog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.PollTimeS <= 0 {
		cfg.PollTimeS = 20
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			// Must outlive the server-side long-poll window.
			Timeout: time.Duration(cfg.PollTimeS+15) * time.Second,
		},
		logger: utils.GetLogger(),
	}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

type BotInfo struct {
	UserID    string `json:"userId"`
	Nick      string `json:"nick"`
	FirstName string `json:"firstName"`
}

type selfGetResponse struct {
	apiResponse
	BotInfo
}

type eventsGetResponse struct {
	apiResponse
	Events []Event `json:"events"`
}

// SelfGet checks connectivity and returns the bot identity.
func (c *Client) SelfGet(ctx context.Context) (*BotInfo, error) {
	result := selfGetResponse{}
	if err := c.call(ctx, "self/get", url.Values{}, &result); err != nil {
		return nil, err
	}
	return &result.BotInfo, nil
}

// SendText delivers a text message to a chat, optionally with an inline
// keyboard. The keyboard grid is serialized to JSON on the wire.
func (c *Client) SendText(ctx context.Context, chatID, text string, keyboard Keyboard) error {
	params := url.Values{}
	params.Set("chatId", chatID)
	params.Set("text", text)
	if len(keyboard) > 0 {
		markup, err := json.Marshal(keyboard)
		if err != nil {
			return errors.Wrap(err, "marshal inline keyboard")
		}
		params.Set("inlineKeyboardMarkup", string(markup))
	}
	return c.call(ctx, "messages/sendText", params, nil)
}

// AnswerCallbackQuery acknowledges a button press so the client stops showing
// a pending indicator. An empty text is a silent acknowledgement.
func (c *Client) AnswerCallbackQuery(ctx context.Context, queryID, text string) error {
	params := url.Values{}
	params.Set("queryId", queryID)
	if text != "" {
		params.Set("text", text)
	}
	return c.call(ctx, "messages/answerCallbackQuery", params, nil)
}

// EventsGet long-polls for new events and advances the lastEventId cursor.
func (c *Client) EventsGet(ctx context.Context) ([]Event, error) {
	params := url.Values{}
	params.Set("lastEventId", strconv.FormatInt(atomic.LoadInt64(&c.lastEventID), 10))
	params.Set("pollTime", strconv.Itoa(c.cfg.PollTimeS))

	result := eventsGetResponse{}
	if err := c.call(ctx, "events/get", params, &result); err != nil {
		return nil, err
	}

	for _, ev := range result.Events {
		if ev.EventID > atomic.LoadInt64(&c.lastEventID) {
			atomic.StoreInt64(&c.lastEventID, ev.EventID)
		}
	}
	return result.Events, nil
}

// Poll runs the long-poll loop until ctx is cancelled, invoking handler for
// every event in delivery order. Poll errors are logged and retried after a
// short backoff; they never terminate the loop.
func (c *Client) Poll(ctx context.Context, handler func(Event)) error {
	if strings.TrimSpace(c.cfg.Token) == "" {
		return errors.New("bot token is required")
	}

	for {
		events, err := c.EventsGet(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("Bot API poll error", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(2 * time.Second):
			}
			continue
		}

		for _, ev := range events {
			handler(ev)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Client) call(ctx context.Context, method string, params url.Values, out interface{}) error {
	params.Set("token", c.cfg.Token)
	endpoint := strings.TrimRight(c.cfg.APIURL, "/") + "/" + method + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrapf(err, "build %s request", method)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "call %s", method)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return errors.Errorf("bot api %s: status=%d body=%s", method, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var base apiResponse
	if err := json.Unmarshal(body, &base); err != nil {
		return errors.Wrapf(err, "decode %s response", method)
	}
	if !base.OK {
		return errors.Errorf("bot api %s: %s", method, base.Description)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return errors.Wrapf(err, "decode %s payload", method)
		}
	}
	return nil
}
