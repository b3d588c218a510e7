package search

import (
	"strings"

	"github.com/jcdickinson/ferrisfind/internal/index"
	"github.com/jcdickinson/ferrisfind/internal/itemtype"
)

func pathToDir(path string) string {
	return strings.ReplaceAll(path, "::", "/")
}

// hrefAndPath returns the path shown before an item's name and the link to
// its rustdoc page.
func hrefAndPath(rootPath string, it *index.Item) (displayPath, href string) {
	kind := it.Kind.String()
	name := it.Name
	path := it.Path

	switch {
	case it.Kind == itemtype.Module:
		return path + "::", rootPath + pathToDir(path) + "/" + name + "/index.html"
	case it.Kind == itemtype.Import:
		return path + "::", rootPath + pathToDir(path) + "/index.html#reexport." + name
	case it.Kind.IsPrimitiveOrKeyword():
		return "", rootPath + pathToDir(path) + "/" + kind + "." + name + ".html"
	case it.Kind == itemtype.ExternCrate:
		return "", rootPath + name + "/index.html"
	case it.Parent != nil:
		parent := it.Parent
		anchor := "#" + kind + "." + name
		pageType := parent.Kind.String()
		pageName := parent.Name

		switch {
		case parent.Kind == itemtype.Primitive:
			displayPath = parent.Name + "::"
		case it.Kind == itemtype.StructField && parent.Kind == itemtype.Variant:
			// Fields of enum variants live on the enum's page.
			enumName := path
			if i := strings.LastIndex(path, "::"); i >= 0 {
				enumName = path[i+2:]
				path = path[:i]
			} else {
				path = ""
			}
			displayPath = path + "::" + enumName + "::" + parent.Name + "::"
			anchor = "#variant." + parent.Name + ".field." + name
			pageType = "enum"
			pageName = enumName
		default:
			displayPath = path + "::" + parent.Name + "::"
		}
		return displayPath, rootPath + pathToDir(path) + "/" + pageType + "." + pageName + ".html" + anchor
	}
	return path + "::", rootPath + pathToDir(path) + "/" + kind + "." + name + ".html"
}
