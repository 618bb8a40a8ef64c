package collab

import (
	"deltaServer/backend/internal/ot/delta"
)

// 抽象文档内容缓冲区接口：纯文本投影，embed 占一个位置
type Buffer interface {
	Len() int
	Apply(d delta.Delta) error
	String() string
}

// EmbedPlaceholder stands in for an embed in the plain-text projection.
const EmbedPlaceholder = '\uFFFC'

/*
结构示例

初始文档内容 `"Hello world"`：

- original buffer 内容：`"Hello world"`
- add buffer 为空 (`""`)
- piece 表：


[ (orig, offset=0, length=11) ]  // 整个文档


应用 delta [{"retain":5},{"insert":" collaborative"}]：
- 在 **add buffer** 末尾追加 `" collaborative"`：
  - add buffer = `" collaborative"`
- piece 表从一条拆成三条：


[
  (orig, offset=0, length=5),       // "Hello"
  (add,  offset=0, length=14),      // " collaborative"
  (orig, offset=5, length=6),       // " world"
]

带属性的 retain 只改格式，不动 piece 表。
*/
