package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/magicctl/internal/wiki"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type wikiRequest struct {
	DBName string `json:"dbname" binding:"required"`
}

type renameRequest struct {
	Old string `json:"old" binding:"required"`
	New string `json:"new" binding:"required"`
}

type recentChangeRequest struct {
	RC            wiki.RecentChange `json:"rc"`
	ActionComment string            `json:"action_comment"`
}

type linkRequest struct {
	Target string `json:"target" binding:"required"`
	Text   string `json:"text"`
}

type redirectRequest struct {
	Title string `json:"title" binding:"required"`
}

type messageRequest struct {
	Key string `json:"key" binding:"required"`
}

type siteNoticeRequest struct {
	Notice string     `json:"notice"`
	State  wiki.State `json:"state"`
}

type footerRequest struct {
	Key   string            `json:"key" binding:"required"`
	Items map[string]string `json:"items"`
}

type rightsRequest struct {
	User   wiki.User `json:"user"`
	Rights []string  `json:"rights"`
}

type abuseFilterRequest struct {
	Vars map[string]string `json:"vars"`
}

type readWhitelistRequest struct {
	Title wiki.Title `json:"title"`
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"node":    s.name,
			"wiki":    s.hooks.Config().DBName,
			"version": "0.0.1",
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/hooks/globaluserpage", func(c *gin.Context) {
		wikis, ok, err := s.hooks.GlobalUserPageWikis()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if wikis == nil {
			wikis = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"enabled": ok, "wikis": wikis})
	})

	routes := s.router.Group("/hooks", requireToken(s.validator))

	createwiki := routes.Group("/createwiki")
	createwiki.POST("/creation", s.wikiHook(s.hooks.CreateWikiCreation))
	createwiki.POST("/deletion", s.wikiHook(s.hooks.CreateWikiDeletion))
	createwiki.POST("/private", s.wikiHook(s.hooks.CreateWikiStatePrivate))
	createwiki.POST("/rename", func(c *gin.Context) {
		var req renameRequest
		if !bind(c, &req) {
			return
		}
		report, err := s.hooks.CreateWikiRename(c.Request.Context(), req.Old, req.New)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": report})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "report": report})
	})

	routes.POST("/recentchange", func(c *gin.Context) {
		var req recentChangeRequest
		if !bind(c, &req) {
			return
		}
		ctx := c.Request.Context()
		var errs []error
		feeds := 0
		if s.publisher != nil {
			n, err := s.publisher.Publish(ctx, req.RC, req.ActionComment)
			feeds = n
			if err != nil {
				errs = append(errs, err)
			}
		}
		emails, err := s.hooks.RecentChangeSave(ctx, req.RC)
		if err != nil {
			errs = append(errs, err)
		}
		body := gin.H{"feeds": feeds, "emails": emails}
		if err := errors.Join(errs...); err != nil {
			body["error"] = err.Error()
			c.JSON(http.StatusBadGateway, body)
			return
		}
		body["status"] = "ok"
		c.JSON(http.StatusOK, body)
	})

	routes.POST("/link", func(c *gin.Context) {
		var req linkRequest
		if !bind(c, &req) {
			return
		}
		link, ok := s.hooks.HTMLPageLinkRendererEnd(req.Target, req.Text)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"handled": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"handled": true, "link": link})
	})

	routes.POST("/redirect", func(c *gin.Context) {
		var req redirectRequest
		if !bind(c, &req) {
			return
		}
		target, ok := s.hooks.InitializeArticleMaybeRedirect(req.Title)
		c.JSON(http.StatusOK, gin.H{"redirect": ok, "target": target})
	})

	routes.POST("/message", func(c *gin.Context) {
		var req messageRequest
		if !bind(c, &req) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": s.hooks.MessageCacheGet(req.Key)})
	})

	routes.POST("/sitenotice", func(c *gin.Context) {
		var req siteNoticeRequest
		if !bind(c, &req) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"notice": s.hooks.SiteNoticeAfter(req.Notice, req.State)})
	})

	routes.POST("/footer", func(c *gin.Context) {
		var req footerRequest
		if !bind(c, &req) {
			return
		}
		items := req.Items
		if items == nil {
			items = map[string]string{}
		}
		s.hooks.SkinAddFooterLinks(req.Key, items)
		c.JSON(http.StatusOK, gin.H{"items": items})
	})

	routes.POST("/rights", func(c *gin.Context) {
		var req rightsRequest
		if !bind(c, &req) {
			return
		}
		rights, err := s.hooks.UserGetRightsRemove(c.Request.Context(), req.User, req.Rights)
		if rights == nil {
			rights = []string{}
		}
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"rights": rights, "warning": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rights": rights})
	})

	routes.POST("/abusefilter", func(c *gin.Context) {
		var req abuseFilterRequest
		if !bind(c, &req) {
			return
		}
		reasons := []string{}
		filter := s.hooks.AbuseFilterShouldFilterAction(req.Vars, &reasons)
		c.JSON(http.StatusOK, gin.H{"filter": filter, "skip_reasons": reasons})
	})

	routes.POST("/readwhitelist", func(c *gin.Context) {
		var req readWhitelistRequest
		if !bind(c, &req) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"readable": s.hooks.TitleReadWhitelist(req.Title)})
	})

	routes.GET("/mimemagic", func(c *gin.Context) {
		c.String(http.StatusOK, strings.Join(s.hooks.MimeMagicInit(), "\n")+"\n")
	})
}

// wikiHook adapts a single-wiki lifecycle hook to a JSON route.
func (s *Server) wikiHook(fn func(ctx context.Context, dbname string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req wikiRequest
		if !bind(c, &req) {
			return
		}
		if err := fn(c.Request.Context(), req.DBName); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "dbname": req.DBName})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "dbname": req.DBName})
	}
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}
