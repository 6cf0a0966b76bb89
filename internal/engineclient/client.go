// Пакет engineclient — HTTP-клиент внутреннего движка Face2Face.
//
// Движок — отдельный сервис (DUIX_INTERNAL_URL), его схема считается
// внешним контрактом. Клиент поддерживает два режима:
//   - синхронный Synthesize — один запрос, в ответ сырые байты видео
//   - асинхронные Submit/Query — постановка задачи и опрос статуса
//
// Клиент не делает retry: политика повторов принадлежит оркестратору.
// Все ошибки классифицируются в Failure с одним из четырёх видов.
package engineclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// FailureKind — вид отказа внутреннего движка.
type FailureKind string

const (
	// FailureUnreachable — соединение/DNS не удалось.
	FailureUnreachable FailureKind = "unreachable"
	// FailureTimeout — превышен настроенный дедлайн.
	FailureTimeout FailureKind = "timeout"
	// FailureCanceled — вызывающая сторона отменила запрос.
	FailureCanceled FailureKind = "canceled"
	// FailureUpstream — движок вернул неуспешный ответ.
	FailureUpstream FailureKind = "upstream_error"
	// FailureInvalidResponse — пустой или некорректный ответ.
	FailureInvalidResponse FailureKind = "invalid_response"
)

// Failure — структурированный отказ вызова движка.
type Failure struct {
	// Kind — вид отказа.
	Kind FailureKind
	// Message — человекочитаемое описание (для upstream — сообщение движка).
	Message string
}

// Error реализует интерфейс error.
func (f *Failure) Error() string {
	return fmt.Sprintf("внутренний движок: %s: %s", f.Kind, f.Message)
}

// AsFailure извлекает *Failure из цепочки ошибок.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Retryable сообщает, допустим ли повтор вызова при данной ошибке.
// Повтор имеет смысл только для транзиентных отказов сети; ответ
// движка об ошибке — проблема входных данных, не повторяем.
func Retryable(err error) bool {
	f, ok := AsFailure(err)
	if !ok {
		return false
	}
	return f.Kind == FailureUnreachable || f.Kind == FailureTimeout
}

// Код успешного принятия задачи в ответе /easy/submit.
const submitAcceptedCode = 10000

// Client — HTTP-клиент внутреннего движка.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент движка.
// baseURL — базовый URL (DUIX_INTERNAL_URL), trailing slash убирается.
// timeout — дедлайн одного вызова Synthesize (DUIX_SYNTH_TIMEOUT);
// синтез длится минуты, поэтому таймаут порядка минут.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	transport := &http.Transport{
		// Пул idle-соединений для переиспользования между запросами
		MaxIdleConnsPerHost: 10,
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger.With(slog.String("component", "engine_client")),
	}
}

// synthesizeRequest — тело запроса синхронного синтеза.
type synthesizeRequest struct {
	AudioURL string `json:"audio_url"`
	VideoURL string `json:"video_url"`
}

// Synthesize выполняет один синхронный вызов генерации.
// Движок сам скачивает медиа по переданным URL; шлюз локально ничего
// не загружает. Возвращает сырые байты видео или Failure.
func (c *Client) Synthesize(ctx context.Context, audioURL, videoURL string) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{AudioURL: audioURL, VideoURL: videoURL})
	if err != nil {
		return nil, fmt.Errorf("сериализация запроса синтеза: %w", err)
	}

	reqURL := c.baseURL + "/easy/synthesize"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("создание запроса Synthesize: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, upstreamFailure(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if len(data) == 0 {
		return nil, &Failure{Kind: FailureInvalidResponse, Message: "пустое тело ответа"}
	}

	c.logger.Debug("Синтез завершён",
		slog.Int("bytes", len(data)),
		slog.Duration("duration", time.Since(start)),
	)
	return data, nil
}

// submitRequest — тело запроса постановки асинхронной задачи.
// Поля chaofen/watermark_switch/pn — фиксированные параметры движка.
type submitRequest struct {
	AudioURL        string `json:"audio_url"`
	VideoURL        string `json:"video_url"`
	Code            string `json:"code"`
	Chaofen         int    `json:"chaofen"`
	WatermarkSwitch int    `json:"watermark_switch"`
	PN              int    `json:"pn"`
}

// submitResponse — ответ движка на постановку задачи.
type submitResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Submit ставит асинхронную задачу синтеза.
// audioPath/videoPath — пути файлов, видимые движку (container paths).
// Ответ с code != 10000 — UpstreamError.
func (c *Client) Submit(ctx context.Context, audioPath, videoPath, code string) error {
	body, err := json.Marshal(submitRequest{
		AudioURL:        audioPath,
		VideoURL:        videoPath,
		Code:            code,
		Chaofen:         0,
		WatermarkSwitch: 0,
		PN:              1,
	})
	if err != nil {
		return fmt.Errorf("сериализация запроса задачи: %w", err)
	}

	reqURL := c.baseURL + "/easy/submit"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("создание запроса Submit: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return upstreamFailure(resp)
	}

	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return &Failure{Kind: FailureInvalidResponse, Message: "некорректный JSON ответа submit"}
	}
	if sr.Code != submitAcceptedCode {
		return &Failure{
			Kind:    FailureUpstream,
			Message: fmt.Sprintf("задача отклонена движком: code=%d msg=%s", sr.Code, sr.Msg),
		}
	}

	c.logger.Debug("Задача поставлена", slog.String("task_code", code))
	return nil
}

// QueryResult — статус асинхронной задачи от движка.
type QueryResult struct {
	// Code — код статуса движка.
	Code int `json:"code"`
	// Data — полезная нагрузка статуса (прозрачно проксируется).
	Data map[string]any `json:"data"`
}

// Query опрашивает статус асинхронной задачи по коду.
func (c *Client) Query(ctx context.Context, code string) (*QueryResult, error) {
	reqURL := fmt.Sprintf("%s/easy/query?code=%s", c.baseURL, url.QueryEscape(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса Query: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, upstreamFailure(resp)
	}

	var qr QueryResult
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, &Failure{Kind: FailureInvalidResponse, Message: "некорректный JSON ответа query"}
	}
	return &qr, nil
}

// classifyTransportError различает таймаут, отмену и недоступность.
// Отмена вызывающей стороной (клиент отключился) — не транзиентный
// отказ сети, повтор не имеет смысла.
func classifyTransportError(err error) *Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: FailureTimeout, Message: err.Error()}
	}
	if errors.Is(err, context.Canceled) {
		return &Failure{Kind: FailureCanceled, Message: err.Error()}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &Failure{Kind: FailureTimeout, Message: err.Error()}
	}

	return &Failure{Kind: FailureUnreachable, Message: err.Error()}
}

// upstreamFailure строит Failure из неуспешного HTTP-ответа движка.
// Тело читается ограниченно — сообщение движка попадает в ошибку,
// мегабайты мусора — нет.
func upstreamFailure(resp *http.Response) *Failure {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return &Failure{
		Kind:    FailureUpstream,
		Message: fmt.Sprintf("статус %d: %s", resp.StatusCode, msg),
	}
}
