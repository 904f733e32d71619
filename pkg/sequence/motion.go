package sequence

import (
	"strings"
	"unicode/utf8"
)

// MotionTypeIdle is the neutral default returned when no keyword matches.
const MotionTypeIdle = "idle"

// MotionType is one entry of the motion taxonomy: a named type with the
// keywords that select it.
type MotionType struct {
	ID       string
	Name     string
	Keywords []string
}

// defaultTaxonomy lists the built-in motion types. Order matters: score
// ties resolve to the earlier entry.
var defaultTaxonomy = []MotionType{
	{ID: "idle", Name: "待机", Keywords: []string{"待机", "空闲", "等待", "默认"}},
	{ID: "speaking", Name: "说话", Keywords: []string{"说", "讲", "表达", "说话"}},
	{ID: "thinking", Name: "思考", Keywords: []string{"想", "思考", "思考中", "琢磨", "疑惑", "为什么", "如何"}},
	{ID: "happy", Name: "开心", Keywords: []string{"开心", "高兴", "快乐", "愉快", "欢乐", "哈哈", "笑", "太好了"}},
	{ID: "surprised", Name: "惊讶", Keywords: []string{"惊讶", "意外", "哇", "天啊", "不会吧", "真的吗", "震惊"}},
	{ID: "angry", Name: "生气", Keywords: []string{"生气", "愤怒", "恼火", "气死", "讨厌", "烦", "不爽"}},
	{ID: "sad", Name: "难过", Keywords: []string{"难过", "伤心", "悲伤", "哭", "郁闷", "失落", "痛苦"}},
	{ID: "agree", Name: "肯定", Keywords: []string{"是的", "对的", "没错", "同意", "肯定", "当然", "确实"}},
	{ID: "disagree", Name: "否定", Keywords: []string{"不是", "不对", "错了", "不同意", "否定", "当然不", "没有"}},
	{ID: "question", Name: "疑问", Keywords: []string{"什么", "怎么", "如何", "哪里", "谁", "为什么", "吗", "呢"}},
	{ID: "welcome", Name: "欢迎", Keywords: []string{"欢迎", "你好", "您好", "大家好", "来了", "欢迎回来"}},
	{ID: "thanks", Name: "感谢", Keywords: []string{"谢谢", "感谢", "谢了", "多谢", "感谢你", "太感谢了"}},
	{ID: "apology", Name: "道歉", Keywords: []string{"对不起", "抱歉", "不好意思", "道歉", "错怪", "抱歉抱歉"}},
	{ID: "goodbye", Name: "告别", Keywords: []string{"再见", "拜拜", "88", "下次见", "回头见", "告别"}},
	{ID: "excited", Name: "兴奋", Keywords: []string{"兴奋", "激动", "太棒了", "太好了", "万岁", "厉害", "牛"}},
}

// Matcher infers a motion type from text by keyword weight: every
// matched keyword contributes its rune length to its type's score, so
// longer, more specific keywords beat short generic ones.
type Matcher struct {
	types []MotionType
}

// NewMatcher returns a matcher over the built-in taxonomy.
func NewMatcher() *Matcher {
	return &Matcher{types: defaultTaxonomy}
}

// NewMatcherWithTaxonomy returns a matcher over a custom taxonomy.
// Iteration order of the slice is the tie-break order.
func NewMatcherWithTaxonomy(types []MotionType) *Matcher {
	return &Matcher{types: types}
}

// Match returns the id of the highest scoring motion type for the text,
// or MotionTypeIdle when nothing matches. Matching is case-insensitive
// substring containment.
func (m *Matcher) Match(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return MotionTypeIdle
	}

	best := MotionTypeIdle
	bestScore := 0
	for _, mt := range m.types {
		score := 0
		for _, kw := range mt.Keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				score += utf8.RuneCountInString(kw)
			}
		}
		if score > bestScore {
			best = mt.ID
			bestScore = score
		}
	}
	return best
}

// Types returns the taxonomy in iteration order.
func (m *Matcher) Types() []MotionType {
	return m.types
}
