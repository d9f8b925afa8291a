package e2e_harness

// SeedDefinition is the schema document the end-to-end scenario
// provisions before exercising the engine.
const SeedDefinition = `
version: 1
enum_groups:
  - name: yes_no
    values: ["No", "Yes"]
attributes:
  - name: Has Fever
    datatype: enum
    enum_group: yes_no
    required: true
  - name: Age
    datatype: float
  - name: Taxpayer ID
    slug: taxpayer_id
    datatype: text
    unique: true
`
