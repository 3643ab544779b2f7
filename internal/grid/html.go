package grid

import (
	"errors"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var reSpaces = regexp.MustCompile(`\s+`)

// FromHTMLTable reads the first <table> of an HTML document (typically a
// report email body) into a SliceGrid. HTML tables carry no merged-cell
// metadata worth trusting, so MergedRegions stays empty.
func FromHTMLTable(html string) (*SliceGrid, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, errors.New("no table found in html")
	}

	rows := make([][]any, 0)
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		row := make([]any, 0)
		tr.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			text := strings.TrimSpace(reSpaces.ReplaceAllString(cell.Text(), " "))
			row = append(row, typedCell(text))
		})
		rows = append(rows, row)
	})

	return &SliceGrid{Rows: rows}, nil
}
