package model

// Task 固定的内容任务目录，核心逻辑只读
type Task struct {
	ID          string      `gorm:"primarykey;type:varchar(20)" json:"id" yaml:"id"`
	ContentType ContentType `gorm:"type:varchar(30);not null" json:"content_type" yaml:"content_type"`
	Title       string      `gorm:"type:varchar(200)" json:"title" yaml:"title"`
	Description string      `gorm:"type:text" json:"description" yaml:"description"`

	StructuredPrompt string `gorm:"type:text" json:"structured_prompt" yaml:"structured_prompt"`
	// 占位符 {sample1} {sample2}
	ExamplePromptTemplate string `gorm:"type:text" json:"example_prompt_template" yaml:"example_prompt_template"`
}
