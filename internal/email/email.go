package email

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/telemetry"
)

//go:embed templates/order_confirmation.html
var templateFS embed.FS

var confirmation = template.Must(template.ParseFS(templateFS, "templates/order_confirmation.html"))

const (
	sentMessage   = "Email envoyé avec succès"
	failedMessage = "Erreur lors de l'envoi de l'email"
)

type Service struct {
	apiURL string
	client *http.Client
	now    func() time.Time
}

func NewService(apiURL string) *Service {
	return &Service{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Message string `json:"message"`
	HTML    string `json:"html"`
}

// RenderTemplate builds the branded order-confirmation body.
func (s *Service) RenderTemplate(payload models.EmailPayload) (string, error) {
	var buf bytes.Buffer
	err := confirmation.Execute(&buf, struct {
		Name            string
		OrderDetailsURI string
		Year            int
	}{
		Name:            payload.Name,
		OrderDetailsURI: payload.OrderDetailsURI,
		Year:            s.now().Year(),
	})
	if err != nil {
		return "", fmt.Errorf("rendering email: %w", err)
	}
	return buf.String(), nil
}

// SendEmail posts the rendered message to the mail relay. It never returns an
// error: the outcome is reported in the response and failures are logged.
func (s *Service) SendEmail(ctx context.Context, payload models.EmailPayload) models.EmailResponse {
	start := time.Now()
	err := s.send(ctx, payload)
	telemetry.ObserveBackend("send_email", err, start)

	if err != nil {
		slog.Error("Failed to send email", "to", payload.To, "error", err)
		return models.EmailResponse{Success: false, Message: failedMessage}
	}
	return models.EmailResponse{Success: true, Message: sentMessage}
}

func (s *Service) send(ctx context.Context, payload models.EmailPayload) error {
	html, err := s.RenderTemplate(payload)
	if err != nil {
		return err
	}

	body, err := json.Marshal(sendRequest{
		To:      payload.To,
		Subject: payload.Subject,
		Message: payload.Message,
		HTML:    html,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/api/send-email", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	var out models.EmailResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decoding relay response: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("relay refused: %s", out.Message)
	}
	return nil
}

// SendOrderConfirmation mails the summary of a placed order.
func (s *Service) SendOrderConfirmation(ctx context.Context, subject string, user models.UserContext, order models.Order, detailsURI string) models.EmailResponse {
	return s.SendEmail(ctx, models.EmailPayload{
		To:              user.Email,
		Subject:         subject,
		Message:         fmt.Sprintf("Commande #%s enregistrée, total %.2f€.", order.ID, order.Total),
		Name:            user.FirstName,
		OrderDetailsURI: detailsURI,
	})
}
