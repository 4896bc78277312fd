package inucoop

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/haksik/internal/domain"
)

const (
	tableSelector = "#menuBox"
	rowSelector   = "tr"
	labelSelector = "td.corn_nm, th.corn_nm"
	daySelector   = "td.din_lists, td.din_list"
)

// ParseError 表示页面结构上缺少菜单表格（或根本无法读取）。
// 只在 ParseStrict 中返回；Parse 会把它吸收为空结果。
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse menu: %s: %v", e.Reason, e.Err)
	}
	return "parse menu: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// DayIndex 返回 t 对应的星期列（0=周日 … 6=周六），与表格列顺序一致。
func DayIndex(t time.Time) int { return int(t.Weekday()) % 7 }

// Parse 从一周菜单页中取出 dayIndex 那一列的餐次列表。
//
// 约束：
// - 纯函数：不做 I/O，不做日期计算
// - 结构缺失（无表格/行缺少单元格/列越界）一律降级为“无数据”，不报错
// - 输出顺序与页面行顺序、单元格内换行顺序一致
func Parse(html []byte, dayIndex int) []domain.MealSlot {
	slots, err := ParseStrict(html, dayIndex)
	if err != nil {
		return []domain.MealSlot{}
	}
	return slots
}

// ParseStrict 与 Parse 相同，但在缺少 #menuBox 表格时返回 *ParseError。
func ParseStrict(html []byte, dayIndex int) ([]domain.MealSlot, error) {
	if len(bytes.TrimSpace(html)) == 0 {
		return nil, &ParseError{Reason: "html 为空"}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, &ParseError{Reason: "html 无法解析", Err: err}
	}
	table := doc.Find(tableSelector).First()
	if table.Length() == 0 {
		return nil, &ParseError{Reason: "未找到 " + tableSelector}
	}

	slots := make([]domain.MealSlot, 0, 4)
	table.Find(rowSelector).Each(func(i int, row *goquery.Selection) {
		// 第 0 行是表头（요일）。
		if i == 0 {
			return
		}
		label := row.Find(labelSelector).First()
		if label.Length() == 0 {
			return
		}
		if dayIndex < 0 {
			return
		}
		cell := row.Find(daySelector).Eq(dayIndex)
		if cell.Length() == 0 {
			return
		}
		dishes := splitDishes(cell)
		if len(dishes) == 0 {
			return
		}
		slots = append(slots, domain.MealSlot{
			MealTime: normSpace(label.Text()),
			Dishes:   dishes,
		})
	})
	return slots, nil
}

// splitDishes 按 <br> 切分单元格内容；嵌套元素里的 <br> 同样视为分隔。
func splitDishes(cell *goquery.Selection) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		d := strings.TrimSpace(cur.String())
		cur.Reset()
		if d == "" || d == domain.NoDataPlaceholder {
			return
		}
		out = append(out, d)
	}

	var walk func(s *goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, n *goquery.Selection) {
			switch goquery.NodeName(n) {
			case "br":
				flush()
			case "#text":
				cur.WriteString(n.Text())
			case "#comment":
			default:
				walk(n)
			}
		})
	}
	walk(cell)
	flush()
	return out
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
