package extract

import (
	"fmt"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

var (
	mdOnce      sync.Once
	mdConverter *converter.Converter
	sanitizer   *bluemonday.Policy
)

func markdownConverter() (*converter.Converter, *bluemonday.Policy) {
	mdOnce.Do(func() {
		mdConverter = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		)
		sanitizer = bluemonday.UGCPolicy()
	})
	return mdConverter, sanitizer
}

// Commonmark sanitises src and converts it to CommonMark. Relative links
// resolve against baseURL when it is set.
func Commonmark(src, baseURL string) (string, error) {
	conv, policy := markdownConverter()
	clean := policy.Sanitize(styleBlockRe.ReplaceAllString(src, ""))

	var (
		md  string
		err error
	)
	if baseURL != "" {
		md, err = conv.ConvertString(clean, converter.WithDomain(baseURL))
	} else {
		md, err = conv.ConvertString(clean)
	}
	if err != nil {
		return "", fmt.Errorf("extract: commonmark: %w", err)
	}
	return strings.TrimSpace(md), nil
}
