package storyboard

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"storyreel/internal/domain"
)

// The heuristic generator assembles a storyboard without any model call by
// mining the source text with fixed bilingual dictionaries and composing
// per-position archetype prompts. It never fails, which makes it the terminal
// strategy of the generation chain.

var englishLower = cases.Lower(language.English)

type keywordEntry struct {
	token     string
	canonical string
}

// Bilingual token sets mapped to canonical Chinese tags. Order matters: it
// fixes the keyword priority for a given text.
var keywordDictionary = []keywordEntry{
	{"学校", "学校"}, {"school", "学校"},
	{"教室", "教室"}, {"classroom", "教室"},
	{"朋友", "朋友"}, {"friends", "朋友"},
	{"家里", "家里"}, {"home", "家里"},
	{"公园", "公园"}, {"park", "公园"},
	{"咖啡厅", "咖啡厅"}, {"cafe", "咖啡厅"},
	{"图书馆", "图书馆"}, {"library", "图书馆"},
	{"操场", "操场"}, {"playground", "操场"},
	{"家人", "家人"}, {"family", "家人"},
	{"学习", "学习"}, {"study", "学习"},
	{"工作", "工作"}, {"work", "工作"},
	{"自然", "自然"}, {"nature", "自然"},
}

var emotionDictionary = []struct {
	emotion string
	tokens  []string
}{
	{"peaceful", []string{"平静", "安静", "舒适", "peaceful", "calm", "quiet"}},
	{"engaged", []string{"忙碌", "活跃", "专注", "busy", "active", "focused"}},
	{"emotional", []string{"激动", "感动", "难过", "excited", "moved", "emotional"}},
	{"reflective", []string{"思考", "回忆", "总结", "thinking", "reflecting", "remembering"}},
}

var locationDictionary = []struct {
	category string
	tokens   []string
}{
	{"日常环境", []string{"家", "房间", "home", "room"}},
	{"主要场景", []string{"学校", "公司", "school", "office"}},
	{"关键地点", []string{"公园", "咖啡厅", "park", "cafe"}},
	{"宁静场所", []string{"图书馆", "花园", "library", "garden"}},
}

var activityDictionary = []struct {
	category string
	tokens   []string
}{
	{"日常起居", []string{"起床", "吃饭", "waking up", "eating"}},
	{"主要活动", []string{"学习", "工作", "studying", "working"}},
	{"情感时刻", []string{"聊天", "玩耍", "chatting", "playing"}},
	{"思考反省", []string{"思考", "写作", "thinking", "writing"}},
}

type sceneSketch struct {
	kind     string
	keywords []string
	emotion  string
	location string
	activity string
}

// fallbackStoryboard builds a complete storyboard from the source text alone.
func fallbackStoryboard(content, characterCard string, seed int64) domain.Storyboard {
	sketches := sketchScenes(content)
	sb := make(domain.Storyboard, domain.SceneCount)
	for i, sketch := range sketches {
		sceneID := i + 1
		sb[i] = domain.Scene{
			SceneID:     sceneID,
			Prompt:      domain.TruncatePrompt(composePrompt(sketch, characterCard)),
			VideoPrompt: defaultVideoPrompt(sceneID),
			Seed:        seed,
			Style:       domain.DefaultStyle(),
		}
	}
	return sb
}

// sketchScenes maps the text onto the four narrative positions. Extraction
// shortfalls fall back to fixed category defaults.
func sketchScenes(content string) [domain.SceneCount]sceneSketch {
	keywords := extractKeywords(content)
	emotions := extractEmotions(content)
	locations := extractLocations(content)
	activities := extractActivities(content)

	return [domain.SceneCount]sceneSketch{
		{
			kind:     "opening",
			keywords: sliceRange(keywords, 0, 2),
			emotion:  pick(emotions, 0, "peaceful"),
			location: pick(locations, 0, "日常环境"),
			activity: pick(activities, 0, "日常起居"),
		},
		{
			kind:     "development",
			keywords: sliceRange(keywords, 1, 3),
			emotion:  pick(emotions, 1, "engaged"),
			location: pick(locations, 1, pick(locations, 0, "主要场景")),
			activity: pick(activities, 1, pick(activities, 0, "主要活动")),
		},
		{
			kind:     "climax",
			keywords: sliceRange(keywords, 2, 4),
			emotion:  pick(emotions, 2, pick(emotions, 0, "emotional")),
			location: pick(locations, 2, pick(locations, 0, "关键地点")),
			activity: pick(activities, 2, "情感时刻"),
		},
		{
			kind:     "ending",
			keywords: sliceRange(keywords, 0, 2),
			emotion:  pick(emotions, 3, "reflective"),
			location: pick(locations, 3, "宁静场所"),
			activity: pick(activities, 3, "思考反省"),
		},
	}
}

// composePrompt assembles character card, style, subject, aesthetics and
// atmosphere fragments in that fixed order.
func composePrompt(s sceneSketch, characterCard string) string {
	return fmt.Sprintf("%s, %s, %s, %s, %s",
		characterCard,
		styleFragment(s.kind),
		subjectFragment(s.kind, s.activity, s.keywords),
		aestheticFragment(s.emotion, s.location),
		atmosphereFragment(s.emotion),
	)
}

func styleFragment(kind string) string {
	lighting := map[string]string{
		"opening":     "柔和的晨光",
		"development": "明亮的自然光",
		"climax":      "戏剧性的电影光效",
		"ending":      "温暖的黄金时刻光线",
	}[kind]
	if lighting == "" {
		lighting = "柔和光线"
	}
	return "韩式动漫3D风格, " + lighting + ", 电影感构图"
}

func subjectFragment(kind, activity string, keywords []string) string {
	keywordStr := "日常生活元素"
	if len(keywords) > 0 {
		keywordStr = strings.Join(keywords, ", ")
	}
	switch kind {
	case "opening":
		return fmt.Sprintf("一个年轻人开始新的一天，正在%s，周围环境包含%s，展现日常生活的开始", activity, keywordStr)
	case "development":
		return fmt.Sprintf("主角专注地进行%s，身处充满%s的环境中，展现积极投入的状态", activity, keywordStr)
	case "climax":
		return fmt.Sprintf("情感高潮时刻，主角深度体验%s，%s成为画面的重要元素，突出内心感受", activity, keywordStr)
	case "ending":
		return fmt.Sprintf("宁静的结尾场景，主角在%s后进行反思，%s作为背景元素营造温馨氛围", activity, keywordStr)
	}
	return fmt.Sprintf("展现%s的场景，包含%s元素", activity, keywordStr)
}

func aestheticFragment(emotion, location string) string {
	camera := map[string]string{
		"peaceful":   "中景, 平视角度",
		"engaged":    "特写镜头, 轻微低角度",
		"emotional":  "戏剧性特写, 高对比度",
		"reflective": "远景, 鸟瞰视角",
	}[emotion]
	if camera == "" {
		camera = "中景, 平衡构图"
	}
	palette := map[string]string{
		"日常环境": "暖色调, 柔和阴影",
		"主要场景": "鲜艳的色彩, 均衡曝光",
		"关键地点": "丰富的色彩深度, 选择性对焦",
		"宁静场所": "柔和的色调, 平缓的渐变",
	}[location]
	if palette == "" {
		palette = "和谐的色调"
	}
	return camera + ", " + palette + ", 景深, 专业摄影"
}

func atmosphereFragment(emotion string) string {
	atmosphere := map[string]string{
		"peaceful":   "宁静祥和的氛围",
		"engaged":    "充满活力和专注的氛围",
		"emotional":  "紧张而富有戏剧性的感觉",
		"reflective": "沉思和怀旧的氛围",
	}[emotion]
	if atmosphere == "" {
		atmosphere = "均衡的情感基调"
	}
	return atmosphere + ", 9:16竖版，高画质，细节丰富, 梦幻空灵的质感"
}

// defaultVideoPrompt returns the motion direction for a scene position.
func defaultVideoPrompt(sceneID int) string {
	switch sceneID {
	case 1:
		return "特写镜头，画面稳定"
	case 2:
		return "中景镜头，轻微左摇"
	case 3:
		return "广角镜头，缓慢拉远"
	case 4:
		return "特写镜头，聚焦于细节"
	}
	return "镜头缓慢移动"
}

func extractKeywords(content string) []string {
	lowered := englishLower.String(content)
	var found []string
	for _, entry := range keywordDictionary {
		if !containsToken(content, lowered, entry.token) {
			continue
		}
		if !slices.Contains(found, entry.canonical) {
			found = append(found, entry.canonical)
		}
	}
	if len(found) == 0 {
		return []string{"日常生活", "宁静场景"}
	}
	if len(found) > 4 {
		found = found[:4]
	}
	return found
}

func extractEmotions(content string) []string {
	lowered := englishLower.String(content)
	var found []string
	for _, entry := range emotionDictionary {
		for _, token := range entry.tokens {
			if containsToken(content, lowered, token) {
				found = append(found, entry.emotion)
				break
			}
		}
	}
	return found
}

func extractLocations(content string) []string {
	lowered := englishLower.String(content)
	var found []string
	for _, entry := range locationDictionary {
		for _, token := range entry.tokens {
			if containsToken(content, lowered, token) {
				found = append(found, entry.category)
				break
			}
		}
	}
	return found
}

func extractActivities(content string) []string {
	lowered := englishLower.String(content)
	var found []string
	for _, entry := range activityDictionary {
		for _, token := range entry.tokens {
			if containsToken(content, lowered, token) {
				found = append(found, entry.category)
				break
			}
		}
	}
	return found
}

// containsToken matches ASCII tokens case-insensitively against the lowered
// text and everything else verbatim.
func containsToken(content, lowered, token string) bool {
	if isASCII(token) {
		return strings.Contains(lowered, token)
	}
	return strings.Contains(content, token)
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}

func sliceRange(list []string, from, to int) []string {
	if from >= len(list) {
		return nil
	}
	if to > len(list) {
		to = len(list)
	}
	return list[from:to]
}

func pick(list []string, i int, fallback string) string {
	if i < len(list) {
		return list[i]
	}
	return fallback
}
