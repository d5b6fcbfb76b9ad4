// Package reniec looks up persons by national ID (DNI) against the RENIEC
// registry API. It backs the patient-selection fallback when the clinic
// directory has no match.
package reniec

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/clinisys/clinic-scheduling/internal/booking"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type personResponse struct {
	DNI          string `json:"dni"`
	Names        string `json:"nombres"`
	PaternalName string `json:"apellidoPaterno"`
	MaternalName string `json:"apellidoMaterno"`
}

// FindPerson resolves a DNI to person data. A registry miss maps to
// booking.ErrPatientNotFound; transport failures map to
// booking.ErrSourceUnavailable.
func (c *Client) FindPerson(ctx context.Context, nationalID string) (*booking.Patient, error) {
	url := fmt.Sprintf("%s/dni/%s", c.baseURL, nationalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build reniec request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", booking.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: dni %s not in registry", booking.ErrPatientNotFound, nationalID)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: reniec returned %d", booking.ErrSourceUnavailable, resp.StatusCode)
	}

	var body personResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode reniec response: %w", err)
	}

	return &booking.Patient{
		NationalID: body.DNI,
		FirstName:  body.Names,
		LastName:   body.PaternalName + " " + body.MaternalName,
		Registered: false,
	}, nil
}
