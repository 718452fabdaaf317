// Package templates renders the HTML emails sent to viewers.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

//go:embed files
var embedded embed.FS

// Template names
const (
	PurchaseReceipt = "emails/purchase_receipt.html"
	Marketing       = "emails/marketing.html"
)

// Manager handles template loading and caching
type Manager struct {
	fsys    fs.FS
	debug   bool
	cache   map[string]*template.Template
	mu      sync.RWMutex
	funcMap template.FuncMap
}

// NewManager creates a template manager over the embedded templates, or over
// dir when it is set. With debug, templates are re-read on every render.
func NewManager(dir string, debug bool) (*Manager, error) {
	var fsys fs.FS
	if dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return nil, fmt.Errorf("template directory does not exist: %s", dir)
		}
		fsys = os.DirFS(dir)
	} else {
		sub, err := fs.Sub(embedded, "files")
		if err != nil {
			return nil, err
		}
		fsys = sub
	}

	m := &Manager{
		fsys:  fsys,
		debug: debug,
		cache: make(map[string]*template.Template),
		funcMap: template.FuncMap{
			"formatDate":     formatDate,
			"formatDateTime": formatDateTime,
			"formatMoney":    FormatMoney,
		},
	}

	if !debug {
		if err := m.loadTemplates(); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// loadTemplates parses every email page together with the layout
func (m *Manager) loadTemplates() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return fs.WalkDir(m.fsys, "emails", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".html" {
			return nil
		}
		tmpl, err := m.parse(p)
		if err != nil {
			return err
		}
		m.cache[p] = tmpl
		return nil
	})
}

func (m *Manager) parse(name string) (*template.Template, error) {
	layout, err := fs.ReadFile(m.fsys, "layouts/email.html")
	if err != nil {
		return nil, fmt.Errorf("failed to read layout: %w", err)
	}
	page, err := fs.ReadFile(m.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", name, err)
	}

	tmpl := template.New("base").Funcs(m.funcMap)
	if _, err := tmpl.Parse(string(layout)); err != nil {
		return nil, fmt.Errorf("failed to parse layout for %s: %w", name, err)
	}
	if _, err := tmpl.Parse(string(page)); err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return tmpl, nil
}

// Render renders a template with the given data
func (m *Manager) Render(w io.Writer, name string, data interface{}) error {
	if m.debug {
		tmpl, err := m.parse(name)
		if err != nil {
			return fmt.Errorf("failed to reload templates: %w", err)
		}
		m.mu.Lock()
		m.cache[name] = tmpl
		m.mu.Unlock()
	}

	m.mu.RLock()
	tmpl, ok := m.cache[name]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("template not found: %s", name)
	}

	return tmpl.ExecuteTemplate(w, "base", data)
}

// RenderString renders a template into a string, as email bodies need
func (m *Manager) RenderString(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := m.Render(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ReceiptData feeds the purchase receipt email
type ReceiptData struct {
	SiteName       string
	Email          string
	BannerTitle    string
	Price          decimal.Decimal
	PurchaseDate   time.Time
	ExpirationDate time.Time
	WatchURL       string
}

// MarketingData feeds the newsletter email sent from the customers page
type MarketingData struct {
	SiteName string
	SiteURL  string
	Email    string
	Message  string
}

// Template helper functions

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02/01/2006")
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02/01/2006 15:04")
}

// FormatMoney renders an amount in reais, e.g. "R$ 1.234,50"
func FormatMoney(amount decimal.Decimal) string {
	fixed := amount.Abs().StringFixed(2)
	whole, cents, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}

	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	return fmt.Sprintf("%sR$ %s,%s", sign, b.String(), cents)
}
