package ecoledirecte

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL    = "https://api.ecoledirecte.com"
	defaultAPIVersion = "4.60.5"
	defaultTimeout    = 30 * time.Second
)

var ErrAuthFailed = errors.New("ecoledirecte: authentication failed")

// APIError is a non-200 application code in the portal's JSON envelope.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ecoledirecte: api code %d: %s", e.Code, e.Message)
}

type Config struct {
	BaseURL    string // override for tests; default is the public API
	APIVersion string
	Timeout    time.Duration
}

// Client talks to the portal. All payloads go as form-encoded "data={json}"
// per the portal's convention; responses share a {code, token, data}
// envelope.
type Client struct {
	baseURL    string
	apiVersion string
	http       *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion: cfg.APIVersion,
		http:       &http.Client{Timeout: cfg.Timeout},
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Token   string          `json:"token"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) post(ctx context.Context, path, token string, payload any, out any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	form := url.Values{"data": {string(body)}}

	u := fmt.Sprintf("%s%s?verbe=get&v=%s", c.baseURL, path, c.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if token != "" {
		req.Header.Set("X-Token", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("post %s: http %d", path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("decode %s: %w", path, err)
	}
	if env.Code != http.StatusOK {
		if env.Code == 505 {
			return "", fmt.Errorf("%w: %s", ErrAuthFailed, env.Message)
		}
		return "", &APIError{Code: env.Code, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", fmt.Errorf("decode %s data: %w", path, err)
		}
	}
	return env.Token, nil
}

type loginData struct {
	Accounts []struct {
		TypeCompte string `json:"typeCompte"`
		ID         int64  `json:"id"`
		Prenom     string `json:"prenom"`
		Nom        string `json:"nom"`
		Profile    struct {
			Eleves []loginEleve `json:"eleves"`
		} `json:"profile"`
		Modules []loginModule `json:"modules"`
	} `json:"accounts"`
}

type loginEleve struct {
	ID      int64         `json:"id"`
	Prenom  string        `json:"prenom"`
	Nom     string        `json:"nom"`
	Modules []loginModule `json:"modules"`
}

type loginModule struct {
	Code   string `json:"code"`
	Enable bool   `json:"enable"`
}

// Login authenticates and returns a session with the family's students.
// Both family accounts (children under profile.eleves) and direct student
// accounts are supported.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	var data loginData
	token, err := c.post(ctx, "/v3/login.awp", "", map[string]string{
		"identifiant": username,
		"motdepasse":  password,
	}, &data)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrAuthFailed)
	}

	sess := &Session{Token: token}
	for _, acc := range data.Accounts {
		if strings.EqualFold(acc.TypeCompte, "E") {
			sess.Students = append(sess.Students, Student{
				ID:        strconv.FormatInt(acc.ID, 10),
				FirstName: acc.Prenom,
				LastName:  acc.Nom,
				Modules:   enabledModules(acc.Modules),
			})
			continue
		}
		for _, e := range acc.Profile.Eleves {
			sess.Students = append(sess.Students, Student{
				ID:        strconv.FormatInt(e.ID, 10),
				FirstName: e.Prenom,
				LastName:  e.Nom,
				Modules:   enabledModules(e.Modules),
			})
		}
	}
	if len(sess.Students) == 0 {
		return nil, errors.New("ecoledirecte: no student accounts in login response")
	}
	return sess, nil
}

func enabledModules(mods []loginModule) []string {
	var out []string
	for _, m := range mods {
		if m.Enable {
			out = append(out, m.Code)
		}
	}
	return out
}

type gradesData struct {
	Notes []struct {
		Date           string `json:"date"`
		LibelleMatiere string `json:"libelleMatiere"`
		Devoir         string `json:"devoir"`
		Valeur         string `json:"valeur"`
		NoteSur        string `json:"noteSur"`
		Coef           string `json:"coef"`
		MoyenneClasse  string `json:"moyenneClasse"`
		Commentaire    string `json:"commentaire"`
	} `json:"notes"`
}

// Grades fetches all marks for the given school year label ("2024-2025").
func (c *Client) Grades(ctx context.Context, sess *Session, studentID, yearLabel string) ([]Record, error) {
	var data gradesData
	_, err := c.post(ctx, "/v3/eleves/"+studentID+"/notes.awp", sess.Token,
		map[string]string{"anneeScolaire": yearLabel}, &data)
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(data.Notes))
	for _, n := range data.Notes {
		d, err := time.Parse(dateLayout, n.Date)
		if err != nil {
			// the portal occasionally ships dd/mm/yyyy on older years
			d, err = time.Parse("02/01/2006", n.Date)
			if err != nil {
				continue
			}
		}
		out = append(out, Grade{
			Date:         d,
			Subject:      n.LibelleMatiere,
			Assignment:   n.Devoir,
			Value:        strings.ReplaceAll(strings.TrimSpace(n.Valeur), ",", "."),
			OutOf:        strings.ReplaceAll(strings.TrimSpace(n.NoteSur), ",", "."),
			Coefficient:  n.Coef,
			ClassAverage: strings.ReplaceAll(strings.TrimSpace(n.MoyenneClasse), ",", "."),
			Comment:      n.Commentaire,
		})
	}
	return out, nil
}

type homeworkItem struct {
	Matiere       string `json:"matiere"`
	AFaire        bool   `json:"aFaire"`
	Effectue      bool   `json:"effectue"`
	Interrogation bool   `json:"interrogation"`
	// Contenu is base64-encoded HTML on the detail endpoint; the summary
	// endpoint leaves it empty.
	Contenu string `json:"contenu,omitempty"`
}

// Homework fetches upcoming homework, flattened across due dates and sorted
// by date for deterministic diffs.
func (c *Client) Homework(ctx context.Context, sess *Session, studentID string) ([]Record, error) {
	byDate := map[string][]homeworkItem{}
	_, err := c.post(ctx, "/v3/Eleves/"+studentID+"/cahierdetexte.awp", sess.Token,
		map[string]string{}, &byDate)
	if err != nil {
		return nil, err
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	var out []Record
	for _, ds := range dates {
		due, err := time.Parse(dateLayout, ds)
		if err != nil {
			continue
		}
		for _, it := range byDate[ds] {
			if !it.AFaire {
				continue
			}
			out = append(out, Homework{
				Due:     due,
				Subject: it.Matiere,
				Title:   decodeContent(it.Contenu),
				Done:    it.Effectue,
				Test:    it.Interrogation,
			})
		}
	}
	return out, nil
}

func decodeContent(b64 string) string {
	if b64 == "" {
		return ""
	}
	b, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

type lessonItem struct {
	StartDate string `json:"start_date"` // "2006-01-02 15:04"
	EndDate   string `json:"end_date"`
	Matiere   string `json:"matiere"`
	Prof      string `json:"prof"`
	Salle     string `json:"salle"`
	IsAnnule  bool   `json:"isAnnule"`
}

const lessonLayout = "2006-01-02 15:04"

// Lessons fetches the timetable between from and to (inclusive dates).
func (c *Client) Lessons(ctx context.Context, sess *Session, studentID string, from, to time.Time) ([]Record, error) {
	var items []lessonItem
	_, err := c.post(ctx, "/v3/E/"+studentID+"/emploidutemps.awp", sess.Token, map[string]any{
		"dateDebut": from.Format(dateLayout),
		"dateFin":   to.Format(dateLayout),
		"avecTrous": false,
	}, &items)
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(items))
	for _, it := range items {
		start, err := time.Parse(lessonLayout, it.StartDate)
		if err != nil {
			continue
		}
		end, err := time.Parse(lessonLayout, it.EndDate)
		if err != nil {
			end = start
		}
		out = append(out, Lesson{
			Start:    start,
			End:      end,
			Subject:  it.Matiere,
			Teacher:  it.Prof,
			Room:     it.Salle,
			Canceled: it.IsAnnule,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].(Lesson).Start.Before(out[j].(Lesson).Start)
	})
	return out, nil
}
