package services

import (
	"strings"
	"testing"

	"backend/models"
)

func TestPreviewEmailAsTextSubstitution(t *testing.T) {
	es := NewEmailService(nil)

	data := models.EmailData{
		CustomerName: "Jane Smith",
		UserName:     "Sam Field",
		Password:     "initial-secret",
		QuoteNumber:  "QT-000042",
		TotalAmount:  "12450.00",
		CompanyName:  "Roofline Contracting",
		LoginURL:     "https://app.roofline.example.com/login",
	}

	tests := []struct {
		name     string
		template string
		want     []string
	}{
		{
			name:     "quote email",
			template: "<p>Hi {{customer_name}}, your estimate {{quote_number}} totals ${{total_amount}}.</p>",
			want:     []string{"Jane Smith", "QT-000042", "12450.00"},
		},
		{
			name:     "welcome email carries credentials",
			template: "<p>Welcome {{user_name}}!</p><p>Your temporary password is {{password}}. Sign in at {{login_url}}.</p>",
			want:     []string{"Sam Field", "initial-secret", "https://app.roofline.example.com/login"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := es.PreviewEmailAsText(tt.template, data)
			if err != nil {
				t.Fatalf("PreviewEmailAsText() error = %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("preview missing %q in %q", w, got)
				}
			}
			if strings.Contains(got, "{{") {
				t.Errorf("preview left unsubstituted placeholders: %q", got)
			}
		})
	}
}

func TestValidateTemplate(t *testing.T) {
	es := NewEmailService(nil)

	tests := []struct {
		name     string
		template string
		wantErr  bool
	}{
		{"all known variables", "{{user_name}} {{password}} {{login_url}} {{support_email}}", false},
		{"unknown variable", "Hello {{pasword}}", true},
		{"unmatched braces", "Hello {{user_name}", true},
		{"no variables", "Plain text only", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := es.ValidateTemplate(tt.template)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTemplate(%q) error = %v, wantErr %v", tt.template, err, tt.wantErr)
			}
		})
	}
}

func TestGetAvailableVariablesMatchesSubstitution(t *testing.T) {
	es := NewEmailService(nil)
	for _, v := range es.GetAvailableVariables() {
		if _, ok := templateVariables[v.Key]; !ok {
			t.Errorf("advertised variable %q has no substitution", v.Key)
		}
	}
	for key := range templateVariables {
		found := false
		for _, v := range es.GetAvailableVariables() {
			if v.Key == key {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("substitution %q is not advertised to template authors", key)
		}
	}
}
