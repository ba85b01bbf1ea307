package api

import (
	"io/fs"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type pageInfo struct {
	Path        string `json:"path"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon,omitempty"`
	Order       int    `json:"order"`
}

var (
	cardTitleRe = regexp.MustCompile(`<meta\s+name="card-title"\s+content="([^"]*)"`)
	cardDescRe  = regexp.MustCompile(`<meta\s+name="card-description"\s+content="([^"]*)"`)
	cardOrderRe = regexp.MustCompile(`<meta\s+name="card-order"\s+content="(\d+)"`)
	cardIconRe  = regexp.MustCompile(`<meta\s+name="card-icon"\s+content="([^"]*)"`)
)

// PagesHandler lists the HTML pages in webFS that carry a card-title meta
// tag, ordered by card-order. The landing page has no card-title and is
// left out. The directory is rescanned on every request.
func PagesHandler(webFS fs.FS) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var pages []pageInfo

		entries, err := fs.ReadDir(webFS, ".")
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to read web directory")
			return
		}

		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasSuffix(name, ".html") {
				continue
			}

			// Meta tags sit in the head.
			f, err := webFS.Open(name)
			if err != nil {
				continue
			}
			buf := make([]byte, 2048)
			n, _ := f.Read(buf)
			f.Close()
			head := string(buf[:n])

			m := cardTitleRe.FindStringSubmatch(head)
			if m == nil {
				continue
			}

			p := pageInfo{
				Path:  "/" + name,
				Title: m[1],
			}
			if m := cardDescRe.FindStringSubmatch(head); m != nil {
				p.Description = m[1]
			}
			if m := cardIconRe.FindStringSubmatch(head); m != nil {
				p.Icon = m[1]
			}
			if m := cardOrderRe.FindStringSubmatch(head); m != nil {
				p.Order, _ = strconv.Atoi(m[1])
			}
			pages = append(pages, p)
		}

		if pages == nil {
			pages = []pageInfo{}
		}

		sort.SliceStable(pages, func(i, j int) bool {
			return pages[i].Order < pages[j].Order
		})

		WriteJSON(w, http.StatusOK, pages)
	}
}
