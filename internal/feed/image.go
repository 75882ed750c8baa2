package feed

import (
	"net/url"
	"path"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
)

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// imageURL finds an item's picture: enclosure, media:content, item image,
// iTunes image, then the first <img> in the body with an image extension.
func imageURL(it *gofeed.Item) string {
	for _, enc := range it.Enclosures {
		if enc != nil && enc.URL != "" && strings.HasPrefix(enc.Type, "image") {
			return enc.URL
		}
	}
	if media, ok := it.Extensions["media"]; ok {
		for _, c := range media["content"] {
			if u := c.Attrs["url"]; u != "" && (strings.HasPrefix(c.Attrs["type"], "image") || c.Attrs["medium"] == "image") {
				return u
			}
		}
	}
	if it.Image != nil && it.Image.URL != "" {
		return it.Image.URL
	}
	if it.ITunesExt != nil && it.ITunesExt.Image != "" {
		return it.ITunesExt.Image
	}
	for _, body := range []string{it.Content, it.Description} {
		if src := firstImgSrc(body); src != "" && hasImageExt(src) {
			return src
		}
	}
	return ""
}

// firstImgSrc returns the src of the first <img> tag in an HTML fragment.
func firstImgSrc(fragment string) string {
	if !strings.Contains(fragment, "<img") {
		return ""
	}
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "img" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "src" {
					return string(val)
				}
				if !more {
					break
				}
			}
		}
	}
}

func hasImageExt(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return imageExts[strings.ToLower(path.Ext(u.Path))]
}
