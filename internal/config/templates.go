package config

import (
	"fmt"
	"os"
)

func Template() string {
	return farmTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(farmTemplate), 0o600)
}

const farmTemplate = `# magicctl farm configuration
dbname = "metawiki"
database_suffix = "wiki"
global_database = "mhglobal"
echo_database = "metawiki"
centralauth_database = "mhglobal"
local_databases = ["metawiki", "loginwiki"]
staff_wiki = "staffwiki"
staff_access_ids = [1, 2]
cache_directory = "/srv/mediawiki/cache"
domain = "miraheze.org"
static_host = "static.miraheze.org"
language_code = "en"
install_path = "/srv/mediawiki/w"

[managewiki_settings.wgGlobalUserPageCentralWiki]
type = "database"

[managewiki_settings.wgSitename]
type = "text"

[database]
user = "mediawiki"
# password: MAGICCTL_DB_PASSWORD
params = "parseTime=true&timeout=5s"

[database.clusters]
c1 = "db151.miraheze.org:3306"
c2 = "db161.miraheze.org:3306"

[swift]
enabled = true
disabled_wikis = []
auth_url = "https://swift-lb.miraheze.org/auth/v1.0"
user = "mw:media"
# key: MAGICCTL_SWIFT_KEY
prefix = "miraheze"
binary = "swift"
backend = "cli"

[static]
root = "/mnt/mediawiki-static"
socialprofile_dir = "/srv/mediawiki/w/extensions/SocialProfile"

[runner]
mode = "local"

[redis]
jobqueue = "redis://jobchron.miraheze.org:6379/0"
object_cache = "redis://cache.miraheze.org:6379/1"

[irc]
use_rc_patrol = true
use_np_patrol = true
local_interwikis = ["meta"]
canonical_server = "https://meta.miraheze.org"
script = "/w/index.php"

[[irc.feeds]]
addr = "irc.miraheze.org:5070"
interwiki_prefix = "true"

[mail]
smtp_addr = "mail.miraheze.org:25"
from = "noreply@miraheze.org"

[hookd]
addr = "127.0.0.1:9400"
# token: MAGICCTL_HOOKD_TOKEN
`
