package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"dim_chat/internal/protocol/document"
	"dim_chat/internal/protocol/identity"
	"dim_chat/internal/protocol/meta"
)

var errNotFound = errors.New("not found on station")

func (c *App) endpoint(path string) string {
	u := url.URL{
		Scheme: "http",
		Host:   c.host,
		Path:   path,
	}
	return u.String()
}

func (c *App) get(path string) ([]byte, error) {
	resp, err := c.httpClient.Get(c.endpoint(path))
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return io.ReadAll(resp.Body)
	case http.StatusNotFound:
		return nil, errNotFound
	default:
		return nil, fmt.Errorf("GET %s: %s", path, resp.Status)
	}
}

func (c *App) post(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Post(c.endpoint(path), "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}

	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("POST %s: %s: %s", path, resp.Status, bytes.TrimSpace(msg))
	}
	return nil
}

func (c *App) getMeta(id *identity.ID) (*meta.Meta, error) {
	data, err := c.get("/meta/" + id.WithoutTerminal().String())
	if err != nil {
		return nil, err
	}
	return meta.Parse(data)
}

func (c *App) getVisa(id *identity.ID) (*document.Document, error) {
	data, err := c.get("/visa/" + id.WithoutTerminal().String())
	if err != nil {
		return nil, err
	}
	return document.Parse(data)
}

func (c *App) getMembers(group *identity.ID) ([]*identity.ID, error) {
	data, err := c.get(fmt.Sprintf("/group/%s/members", group))
	if err != nil {
		return nil, err
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return identity.ParseAll(list), nil
}

func (c *App) publish(acc *account) error {
	if err := c.post("/meta/"+acc.id.String(), acc.meta); err != nil {
		return err
	}
	return c.post("/visa/"+acc.id.String(), acc.visa)
}

func (c *App) initWebhook(id *identity.ID, terminal string) (*websocket.Conn, error) {
	params := url.Values{
		"id":       []string{id.String()},
		"terminal": []string{terminal},
	}

	u := url.URL{
		Scheme:   "ws",
		Host:     c.host,
		Path:     "/connect",
		RawQuery: params.Encode(),
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}

	return conn, nil
}
