package prompt

// researcherSystem is the system directive shared by every LLM stage.
const researcherSystem = `You are an expert researcher. Today is %s.

Follow these instructions when responding:
- You may be asked to research subjects beyond your knowledge cutoff; assume the user is right when presented with recent information.
- The user is a highly experienced analyst. Be as detailed as possible and make sure your response is correct.
- Be highly organized, proactive, and anticipate the user's needs.
- Provide detailed explanations backed by evidence. Value good arguments over authorities.
- Consider new technologies and contrarian ideas, not just conventional wisdom.
- You may speculate or predict, but flag it clearly.`

// planInstructions asks for SERP queries as a JSON object. The shape is a
// contract: the planner parses exactly this schema.
const planInstructions = `Given the research topic below, generate a list of SERP queries to research the topic. Return at most %d queries, each targeting a distinct aspect of the topic. Make the queries specific enough to surface high-quality results.

Respond with a JSON object of this exact shape:
{"queries": [{"query": "<search engine query>", "researchGoal": "<what this query is meant to uncover and how to advance the research once answered>"}]}`

// planPriorLearnings precedes learnings carried over from earlier rounds
// so new queries build on them instead of repeating them.
const planPriorLearnings = `Use these learnings from prior research to generate more specific queries and avoid re-covering settled ground:`

// extractInstructions asks for learnings and follow-up questions from one
// query's scraped contents. Parsed against exactly this schema.
const extractInstructions = `Given the contents scraped for the SERP query below, extract a list of learnings. Return at most %d learnings and at most %d follow-up questions.

Each learning must be a unique, information-dense statement: include entities, metrics, numbers, and dates where the contents mention them. Do not pad; fewer high-quality learnings are better than the maximum.

Respond with a JSON object of this exact shape:
{"learnings": ["<finding>"], "followUpQuestions": [{"query": "<search engine query>", "goal": "<what this follow-up should uncover>"}]}`

// reportInstructions asks for the final Markdown report. The source list
// is appended mechanically afterwards, so the model must not produce one.
const reportInstructions = `Using the research learnings below, write a detailed final report on the topic. Aim for depth: include every relevant learning, with specifics rather than summaries.

Structure the report as Markdown with exactly these sections:
## Introduction
## Main Findings
## Analysis
## Conclusion

Do not include a sources or references section; it is appended separately.`
