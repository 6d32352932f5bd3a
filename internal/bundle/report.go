package bundle

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/adieyal/pocketreporter2/internal/store"
)

// reportTimeLayout mirrors the en-US locale rendering used in reports.
const reportTimeLayout = "1/2/2006, 3:04:05 PM"

const folderHeadlineLimit = 30

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9]`)

// FolderName is {creation date}_{headline with non-alphanumerics replaced by
// '_', cut to 30 characters}. Characters are UTF-16 code units, so a rune
// outside the BMP (most emoji) becomes "__".
func FolderName(story *store.Story) string {
	date := story.CreatedAt.UTC().Format("2006-01-02")
	safe := unsafeChars.ReplaceAllStringFunc(story.Headline, func(m string) string {
		if r, _ := utf8.DecodeRuneInString(m); r > 0xFFFF {
			return "__"
		}
		return "_"
	})
	if len(safe) > folderHeadlineLimit {
		safe = safe[:folderHeadlineLimit]
	}
	return date + "_" + safe
}

// Report renders the Markdown story report.
func Report(story *store.Story, contacts []*store.Contact, locations []*store.Location, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", story.Headline)
	fmt.Fprintf(&b, "**Date Created:** %s\n", story.CreatedAt.In(loc).Format(reportTimeLayout))
	fmt.Fprintf(&b, "**Last Modified:** %s\n", story.UpdatedAt.In(loc).Format(reportTimeLayout))
	fmt.Fprintf(&b, "**Template:** %s\n", story.TemplateSnapshot.Name)
	fmt.Fprintf(&b, "**Status:** %s\n\n---\n\n", story.Status)

	n := 0
	for _, q := range story.TemplateSnapshot.Questions {
		if q.IsTip {
			continue
		}
		n++
		answer := "(No answer provided)"
		if a, ok := story.Answers[q.ID]; ok && a.Value.Answered() {
			answer = a.Value.String()
		}
		fmt.Fprintf(&b, "### %d. %s\n%s\n\n", n, q.Text, answer)
	}

	if len(contacts) > 0 {
		b.WriteString("---\n## Sources & Contacts\n\n")
		for _, c := range contacts {
			fmt.Fprintf(&b, "### %s\n", c.Name)
			if c.Role != "" || c.Organization != "" {
				role := c.Role
				if c.Organization != "" {
					role = strings.TrimSpace(role + " (" + c.Organization + ")")
				}
				fmt.Fprintf(&b, "**Role:** %s\n", role)
			}
			if c.Phone != "" {
				fmt.Fprintf(&b, "**Phone:** %s\n", c.Phone)
			}
			if c.Email != "" {
				fmt.Fprintf(&b, "**Email:** %s\n", c.Email)
			}
			if c.Notes != "" {
				fmt.Fprintf(&b, "**Notes:** %s\n", c.Notes)
			}
			b.WriteString("\n")
		}
	}

	if len(locations) > 0 {
		b.WriteString("---\n## Locations\n\n")
		for _, l := range locations {
			fmt.Fprintf(&b, "### %s\n", l.Name)
			if l.Address != "" {
				fmt.Fprintf(&b, "**Address:** %s\n", l.Address)
			}
			if l.Lat != nil && l.Lng != nil {
				fmt.Fprintf(&b, "**Coordinates:** %s, %s\n", formatCoord(*l.Lat), formatCoord(*l.Lng))
			}
			if l.Notes != "" {
				fmt.Fprintf(&b, "**Notes:** %s\n", l.Notes)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}

// ContactsCSV renders one row per contact. Every field is quoted with embedded
// quotes doubled so free text may carry commas and newlines.
func ContactsCSV(contacts []*store.Contact) string {
	var b strings.Builder
	b.WriteString("Name,Role,Organization,Phone,Email,Notes\n")
	for _, c := range contacts {
		fields := []string{c.Name, c.Role, c.Organization, c.Phone, c.Email, c.Notes}
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(quoteField(f))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func quoteField(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// MediaFileName is media_NN.{jpg|mp3} for the 1-based position i. The
// extension is a guess from the declared type only.
func MediaFileName(i int, mimeType string) string {
	ext := "mp3"
	if strings.Contains(mimeType, "image") {
		ext = "jpg"
	}
	return fmt.Sprintf("media_%02d.%s", i, ext)
}
