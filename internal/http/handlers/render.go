package handlers

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bchapman/wednesday/internal/pulllist"
)

func render(c *fiber.Ctx, templateName string, data any) error {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"weekRange":   weekRangeLabel,
		"statusLabel": statusLabel,
		"ago":         agoLabel,
	}).ParseGlob("web/templates/*.html")
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Template load error")
	}
	c.Type("html", "utf-8")
	return tmpl.ExecuteTemplate(c.Response().BodyWriter(), templateName, data)
}

func weekRangeLabel(weekID string, timezone string) string {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	return pulllist.FormatWeekRange(weekID, loc)
}

func statusLabel(value string) string {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "running":
		return "Running"
	case "success":
		return "Success"
	case "partial":
		return "Partial"
	case "failed":
		return "Failed"
	default:
		return value
	}
}

func agoLabel(value *time.Time) string {
	if value == nil {
		return "never"
	}

	elapsed := time.Since(*value)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return formatCount(int(elapsed.Minutes()), "minute")
	case elapsed < 24*time.Hour:
		return formatCount(int(elapsed.Hours()), "hour")
	default:
		return formatCount(int(elapsed.Hours()/24), "day")
	}
}

func formatCount(count int, unit string) string {
	if count == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", count, unit)
}
