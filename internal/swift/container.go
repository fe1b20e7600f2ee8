package swift

import (
	"regexp"
	"strings"
)

const (
	ZonePublic = "local-public"

	PersistentModelContainer = "createwiki-persistent-model"
	PersistentModelObject    = "requestmodel.phpml"
	SitemapsPrefix           = "sitemaps/"
)

// ContainerPrefix is the listing prefix for every container of dbname.
func ContainerPrefix(prefix, dbname string) string {
	return prefix + "-" + dbname + "-"
}

// ContainerName joins prefix, wiki and zone.
func ContainerName(prefix, dbname, zone string) string {
	return ContainerPrefix(prefix, dbname) + zone
}

// ParseContainer splits prefix-<db ending in suffix>-<zone>.
func ParseContainer(prefix, suffix, name string) (dbname, zone string, ok bool) {
	re, err := regexp.Compile("^" + regexp.QuoteMeta(prefix) + "-(.+" + regexp.QuoteMeta(suffix) + ")-(.+)$")
	if err != nil {
		return "", "", false
	}
	m := re.FindStringSubmatch(name)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// belongsTo guards against listing prefixes matching a longer wiki name.
func belongsTo(container, dbname string) bool {
	return strings.Contains(container, dbname+"-")
}
