package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// OrderAccepted — ответ на приём заказа.
type OrderAccepted struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
}

// OrderResponse — заказ из API.
type OrderResponse struct {
	ID         string `json:"id"`
	Item       string `json:"item"`
	Robot      string `json:"robot,omitempty"`
	Stage      string `json:"stage"`
	Outcome    string `json:"outcome"`
	Reason     string `json:"reason,omitempty"`
	Detail     string `json:"detail,omitempty"`
	CreatedAt  string `json:"created_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	DurationMs *int64 `json:"duration_ms,omitempty"`
}

// IsPending проверяет, что итога ещё нет.
func (o *OrderResponse) IsPending() bool {
	return o.Outcome == "PENDING"
}

// RobotResponse — робот из API.
type RobotResponse struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at"`
}

// --- Request types ---

// CompletionRequest — сигнал завершения.
type CompletionRequest struct {
	TaskToken string `json:"task_token"`
	Success   *bool  `json:"success,omitempty"`
	Info      string `json:"info,omitempty"`
}

// ListOrdersOpts — параметры фильтрации заказов.
type ListOrdersOpts struct {
	Outcome string
	Limit   int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для API оркестратора.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Orders ---

// SubmitOrder отправляет заказ.
func (c *Client) SubmitOrder(item string) (*OrderAccepted, error) {
	body := map[string]string{"item": item}
	var accepted OrderAccepted
	err := c.post("/api/v1/orders", body, &accepted)
	return &accepted, err
}

// GetOrder возвращает заказ по ID.
func (c *Client) GetOrder(id string) (*OrderResponse, error) {
	var order OrderResponse
	err := c.get("/api/v1/orders/"+url.PathEscape(id), &order)
	return &order, err
}

// ListOrders возвращает заказы с фильтрацией.
func (c *Client) ListOrders(opts ListOrdersOpts) ([]OrderResponse, error) {
	params := url.Values{}
	if opts.Outcome != "" {
		params.Set("outcome", opts.Outcome)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var orders []OrderResponse
	err := c.list("/api/v1/orders", params, &orders)
	return orders, err
}

// WaitOrder опрашивает заказ, пока не появится итог.
func (c *Client) WaitOrder(ctx context.Context, id string, interval time.Duration) (*OrderResponse, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		order, err := c.GetOrder(id)
		if err != nil {
			return nil, err
		}
		if !order.IsPending() {
			return order, nil
		}

		select {
		case <-ctx.Done():
			return order, ctx.Err()
		case <-ticker.C:
		}
	}
}

// --- Completions ---

// ReportCompletion отправляет сигнал завершения от имени робота.
// Возвращает false, если токен неизвестен или уже потреблён.
func (c *Client) ReportCompletion(token string, success bool, info string) (bool, error) {
	req := CompletionRequest{TaskToken: token, Success: &success, Info: info}
	var resp struct {
		Resolved bool `json:"resolved"`
	}
	err := c.post("/api/v1/completions", req, &resp)
	return resp.Resolved, err
}

// --- Robots ---

// ListRobots возвращает всех роботов.
func (c *Client) ListRobots() ([]RobotResponse, error) {
	var robots []RobotResponse
	err := c.list("/api/v1/robots", nil, &robots)
	return robots, err
}

// RegisterRobot регистрирует робота.
func (c *Client) RegisterRobot(name string) (*RobotResponse, error) {
	body := map[string]string{"name": name}
	var robot RobotResponse
	err := c.post("/api/v1/robots", body, &robot)
	return &robot, err
}

// SetRobotStatus меняет статус робота.
func (c *Client) SetRobotStatus(name, status string) (*RobotResponse, error) {
	body := map[string]string{"status": status}
	var robot RobotResponse
	err := c.put("/api/v1/robots/"+url.PathEscape(name)+"/status", body, &robot)
	return &robot, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
