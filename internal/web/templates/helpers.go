// Package templates renders the HTML pages of the study data UI. The
// components are written in .templ files; run templ generate after editing
// them.
package templates

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/JonMunkholm/studydata/internal/core"
)

func entryCells(e core.Entry) []string {
	link := "no"
	if e.LiverAmbulanceLink {
		link = "yes"
	}
	return []string{
		e.PIZ,
		e.ExaminationDate.Format(core.DateLayout),
		link,
		strconv.FormatFloat(e.FibroscanLSMKPa, 'f', 2, 64),
		strconv.FormatFloat(e.FibroscanCAPDbm, 'f', 2, 64),
		e.CreatedAt.Format(time.DateTime),
		e.UpdatedAt.Format(time.DateTime),
		e.CreatedBy,
		e.UpdatedBy,
	}
}

// pageURL links to another page of the entry list with the same filters.
func pageURL(p EntriesViewParams, page int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if p.Filter.PIZ != "" {
		q.Set("piz", p.Filter.PIZ)
	}
	if p.Filter.StartDate != "" {
		q.Set("start_date", p.Filter.StartDate)
	}
	if p.Filter.EndDate != "" {
		q.Set("end_date", p.Filter.EndDate)
	}
	return "/entries?" + q.Encode()
}

func instructionURL(id int64) string {
	return "/instructions/" + strconv.FormatInt(id, 10) + "/download"
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f kB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
