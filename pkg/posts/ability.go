package posts

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/harun/abilityd/pkg/ability"
	"github.com/harun/abilityd/pkg/category"
	"github.com/harun/abilityd/pkg/hooks"
	"github.com/harun/abilityd/pkg/schema"
)

const (
	CategoryID       = "site-post"
	CreatePostID     = "wpv/create-post"
	invalidInputText = "Invalid input data."
)

// Options configures the demo content provider
type Options struct {
	Store Store
	// BaseURL prefixes permalinks: <BaseURL>/?p=<id>
	BaseURL string
	// RequireCapability restricts create-post to callers holding it. Empty
	// allows every caller.
	RequireCapability string
}

// Register wires the site-post category and the create-post ability into
// the categories_init and abilities_init phases.
func Register(h *hooks.Manager, categories *category.Store, registry *ability.Registry, opts Options) error {
	if opts.Store == nil {
		return fmt.Errorf("post store is required")
	}

	if err := h.On(hooks.EventCategoriesInit, hooks.DefaultPriority, func(context.Context) error {
		return categories.Register(CategoryID, "Create Post", "Abilities related to creating site content")
	}); err != nil {
		return err
	}

	return h.On(hooks.EventAbilitiesInit, hooks.DefaultPriority, func(context.Context) error {
		return registry.Register(CreatePostAbility(opts))
	})
}

// CreatePostAbility describes wpv/create-post
func CreatePostAbility(opts Options) ability.Ability {
	permission := ability.AllowAll
	if opts.RequireCapability != "" {
		permission = ability.RequireCapability(opts.RequireCapability)
	}

	return ability.Ability{
		ID:          CreatePostID,
		Label:       "Create Post",
		Description: "Create a new post using structured input.",
		Category:    CategoryID,
		InputSchema: schema.Object(map[string]*schema.Node{
			"title": {
				Type:        schema.TypeString,
				Description: "Title of the post",
			},
			"content": {
				Type:        schema.TypeString,
				Description: "Post content (block editor markup supported)",
			},
			"status": {
				Type:        schema.TypeString,
				Description: "Post status",
				Default:     StatusDraft,
				Enum:        []interface{}{StatusDraft, StatusPublish},
			},
		}, "title", "content"),
		OutputSchema: schema.Object(map[string]*schema.Node{
			"success": {
				Type:        schema.TypeBoolean,
				Description: "Whether the post was created successfully",
			},
			"url": {
				Type:        schema.TypeString,
				Description: "URL of the created post",
			},
			"error": {
				Type:        schema.TypeString,
				Description: "Error message if creation failed",
			},
		}),
		Permission: permission,
		Execute:    createPost(opts),
		Exposure:   ability.Exposure{Public: true, Type: ability.ExposeTool},
	}
}

func createPost(opts Options) ability.ExecuteFunc {
	return func(ctx context.Context, input map[string]interface{}, ictx ability.Context) (map[string]interface{}, error) {
		title, _ := input["title"].(string)
		content, _ := input["content"].(string)

		title = SanitizeText(title)
		content = SanitizeContent(content)
		if title == "" || content == "" {
			return failed(invalidInputText), nil
		}

		status, _ := input["status"].(string)
		if status != StatusPublish {
			status = StatusDraft
		}

		post, err := opts.Store.Create(ctx, Post{
			Title:    title,
			Content:  content,
			Status:   status,
			AuthorID: ictx.UserID,
		})
		if err != nil {
			log.Warn().Err(err).Str("ability_id", CreatePostID).Msg("Post creation failed")
			return failed(err.Error()), nil
		}

		log.Info().
			Int64("post_id", post.ID).
			Str("guid", post.GUID).
			Str("status", post.Status).
			Msg("Post created")

		return map[string]interface{}{
			"success": true,
			"url":     Permalink(opts.BaseURL, post.ID),
		}, nil
	}
}

// Permalink returns the URL of post id under baseURL
func Permalink(baseURL string, id int64) string {
	return strings.TrimRight(baseURL, "/") + "/?p=" + strconv.FormatInt(id, 10)
}

func failed(msg string) map[string]interface{} {
	return map[string]interface{}{
		"success": false,
		"error":   msg,
	}
}
