package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"go-storefront-session/internal/model"
)

func (c *Client) Login(ctx context.Context, req model.LoginRequest) (model.AuthPayload, error) {
	return postData[model.AuthPayload](ctx, c, "/auth/login", req)
}

func (c *Client) Register(ctx context.Context, req model.RegisterRequest) (model.AuthPayload, error) {
	return postData[model.AuthPayload](ctx, c, "/auth/register", req)
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (model.AuthPayload, error) {
	return postData[model.AuthPayload](ctx, c, "/auth/refresh", model.RefreshRequest{RefreshToken: refreshToken})
}

func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.Post(ctx, "/auth/logout", model.RefreshRequest{RefreshToken: refreshToken}, nil)
}

func (c *Client) Profile(ctx context.Context) (model.User, error) {
	var raw json.RawMessage
	if err := c.Get(ctx, "/auth/profile", &raw); err != nil {
		return model.User{}, err
	}

	return userData(raw)
}

func (c *Client) UpdateProfile(ctx context.Context, update model.ProfileUpdate) (model.User, error) {
	var raw json.RawMessage
	if err := c.Put(ctx, "/auth/profile", update, &raw); err != nil {
		return model.User{}, err
	}

	return userData(raw)
}

func (c *Client) ChangePassword(ctx context.Context, req model.ChangePasswordRequest) error {
	var raw json.RawMessage
	if err := c.Put(ctx, "/auth/change-password", req, &raw); err != nil {
		return err
	}

	if len(raw) == 0 {
		return nil
	}

	_, err := decodeData[json.RawMessage](raw)
	return err
}

func (c *Client) GetCart(ctx context.Context) (model.CartData, error) {
	var raw json.RawMessage
	if err := c.Get(ctx, "/cart", &raw); err != nil {
		return model.CartData{}, err
	}

	return decodeData[model.CartData](raw)
}

// PutCart replaces the server cart with lines.
func (c *Client) PutCart(ctx context.Context, lines []model.CartLine) error {
	if lines == nil {
		lines = []model.CartLine{}
	}

	var raw json.RawMessage
	if err := c.Put(ctx, "/cart", model.CartSyncRequest{Items: lines}, &raw); err != nil {
		return err
	}

	if len(raw) == 0 {
		return nil
	}

	_, err := decodeData[json.RawMessage](raw)
	return err
}

// Product reads one catalog entry. Catalog reads are public.
func (c *Client) Product(ctx context.Context, id string) (model.Product, error) {
	var raw json.RawMessage
	if err := c.Get(ctx, "/product/"+url.PathEscape(id), &raw); err != nil {
		return model.Product{}, err
	}

	return decodeData[model.Product](raw)
}

func postData[T any](ctx context.Context, c *Client, path string, in any) (T, error) {
	var zero T

	var raw json.RawMessage
	if err := c.Post(ctx, path, in, &raw); err != nil {
		return zero, err
	}

	return decodeData[T](raw)
}

// userData accepts {data: user}, {data: {user}} and a bare user.
func userData(raw json.RawMessage) (model.User, error) {
	data, err := decodeData[json.RawMessage](raw)
	if err != nil {
		return model.User{}, err
	}

	var wrapped struct {
		User *model.User `json:"user"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.User != nil {
		return *wrapped.User, nil
	}

	var user model.User
	if err := json.Unmarshal(data, &user); err != nil {
		return model.User{}, fmt.Errorf("unmarshal user: %w", err)
	}

	return user, nil
}
